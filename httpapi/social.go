package httpapi

import (
	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/router"
)

type callbackBody struct {
	Code     string `json:"code"`
	Provider string `json:"provider"`
}

func socialLogin(e *authcore.Engine) router.Handler {
	return func(r *router.Request) (*router.Response, error) {
		var in authcore.SocialInput
		if err := r.Decode(&in); err != nil {
			return nil, err
		}
		res, err := e.SocialLogin(requestContext(r), in)
		if err != nil {
			return nil, err
		}
		return router.Data(res), nil
	}
}

func linkSocial(e *authcore.Engine) router.Handler {
	return func(r *router.Request) (*router.Response, error) {
		var in authcore.SocialInput
		if err := r.Decode(&in); err != nil {
			return nil, err
		}
		if err := e.LinkSocial(requestContext(r), r.Principal.UserID(), in); err != nil {
			return nil, err
		}
		return router.Message("Social account linked successfully"), nil
	}
}

func unlinkSocial(e *authcore.Engine) router.Handler {
	return func(r *router.Request) (*router.Response, error) {
		if err := e.UnlinkSocial(requestContext(r), r.Principal.UserID(), r.Param("provider")); err != nil {
			return nil, err
		}
		return router.Message("Social account unlinked successfully"), nil
	}
}

func userSocials(e *authcore.Engine) router.Handler {
	return func(r *router.Request) (*router.Response, error) {
		socials, err := e.UserSocials(requestContext(r), r.Param("userId"))
		if err != nil {
			return nil, err
		}
		return router.Data(socials), nil
	}
}

func oauthCallback(e *authcore.Engine) router.Handler {
	return func(r *router.Request) (*router.Response, error) {
		var in callbackBody
		if err := r.Decode(&in); err != nil {
			return nil, err
		}
		res, err := e.OAuthCallback(requestContext(r), in.Provider, in.Code)
		if err != nil {
			return nil, err
		}
		return router.Data(res), nil
	}
}
