package httpapi

import (
	"strconv"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/router"
)

type roleBody struct {
	RoleName string `json:"roleName"`
}

// pageQuery reads page and limit; malformed values fall back to the engine
// defaults.
func pageQuery(r *router.Request) (page, limit int) {
	page, _ = strconv.Atoi(r.Query("page"))
	limit, _ = strconv.Atoi(r.Query("limit"))
	return page, limit
}

func createUser(e *authcore.Engine) router.Handler {
	return func(r *router.Request) (*router.Response, error) {
		var in authcore.CreateUserInput
		if err := r.Decode(&in); err != nil {
			return nil, err
		}
		view, err := e.CreateUser(requestContext(r), in)
		if err != nil {
			return nil, err
		}
		return router.Data(view), nil
	}
}

func listUsers(e *authcore.Engine) router.Handler {
	return func(r *router.Request) (*router.Response, error) {
		page, limit := pageQuery(r)
		res, err := e.ListUsers(requestContext(r), page, limit)
		if err != nil {
			return nil, err
		}
		return router.Data(res), nil
	}
}

func searchUsers(e *authcore.Engine) router.Handler {
	return func(r *router.Request) (*router.Response, error) {
		page, limit := pageQuery(r)
		res, err := e.SearchUsers(requestContext(r), r.Query("q"), page, limit)
		if err != nil {
			return nil, err
		}
		return router.Data(res), nil
	}
}

func getUser(e *authcore.Engine) router.Handler {
	return func(r *router.Request) (*router.Response, error) {
		view, err := e.GetUser(requestContext(r), r.Param("id"))
		if err != nil {
			return nil, err
		}
		return router.Data(view), nil
	}
}

func updateUser(e *authcore.Engine) router.Handler {
	return func(r *router.Request) (*router.Response, error) {
		var in authcore.UpdateUserInput
		if err := r.Decode(&in); err != nil {
			return nil, err
		}
		view, err := e.UpdateUser(requestContext(r), r.Param("id"), in)
		if err != nil {
			return nil, err
		}
		return router.Data(view), nil
	}
}

func deleteUser(e *authcore.Engine) router.Handler {
	return func(r *router.Request) (*router.Response, error) {
		if err := e.DeleteUser(requestContext(r), r.Param("id")); err != nil {
			return nil, err
		}
		return router.Message("User deleted successfully"), nil
	}
}

func changeRole(e *authcore.Engine) router.Handler {
	return func(r *router.Request) (*router.Response, error) {
		var in roleBody
		if err := r.Decode(&in); err != nil {
			return nil, err
		}
		view, err := e.ChangeUserRole(requestContext(r), r.Param("id"), in.RoleName)
		if err != nil {
			return nil, err
		}
		return router.Data(view), nil
	}
}

func getProfile(e *authcore.Engine) router.Handler {
	return func(r *router.Request) (*router.Response, error) {
		view, err := e.GetProfile(requestContext(r), r.Principal.UserID())
		if err != nil {
			return nil, err
		}
		return router.Data(view), nil
	}
}

func updateProfile(e *authcore.Engine) router.Handler {
	return func(r *router.Request) (*router.Response, error) {
		var in authcore.UpdateUserInput
		if err := r.Decode(&in); err != nil {
			return nil, err
		}
		view, err := e.UpdateProfile(requestContext(r), r.Principal.UserID(), in)
		if err != nil {
			return nil, err
		}
		return router.Data(view), nil
	}
}
