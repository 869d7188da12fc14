package httpapi

import (
	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/router"
)

func listRoles(e *authcore.Engine) router.Handler {
	return func(r *router.Request) (*router.Response, error) {
		roles, err := e.ListRoles(requestContext(r))
		if err != nil {
			return nil, err
		}
		return router.Data(roles), nil
	}
}

func getRole(e *authcore.Engine) router.Handler {
	return func(r *router.Request) (*router.Response, error) {
		role, err := e.GetRole(requestContext(r), r.Param("id"))
		if err != nil {
			return nil, err
		}
		return router.Data(role), nil
	}
}

func createRole(e *authcore.Engine) router.Handler {
	return func(r *router.Request) (*router.Response, error) {
		var in authcore.RoleInput
		if err := r.Decode(&in); err != nil {
			return nil, err
		}
		role, err := e.CreateRole(requestContext(r), in)
		if err != nil {
			return nil, err
		}
		return router.Data(role), nil
	}
}

func updateRole(e *authcore.Engine) router.Handler {
	return func(r *router.Request) (*router.Response, error) {
		var in authcore.RoleInput
		if err := r.Decode(&in); err != nil {
			return nil, err
		}
		role, err := e.UpdateRole(requestContext(r), r.Param("id"), in)
		if err != nil {
			return nil, err
		}
		return router.Data(role), nil
	}
}

func deleteRole(e *authcore.Engine) router.Handler {
	return func(r *router.Request) (*router.Response, error) {
		if err := e.DeleteRole(requestContext(r), r.Param("id")); err != nil {
			return nil, err
		}
		return router.Message("Role deleted successfully"), nil
	}
}

func roleUsers(e *authcore.Engine) router.Handler {
	return func(r *router.Request) (*router.Response, error) {
		users, err := e.RoleUsers(requestContext(r), r.Param("id"))
		if err != nil {
			return nil, err
		}
		return router.Data(users), nil
	}
}
