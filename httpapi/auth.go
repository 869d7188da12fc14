package httpapi

import (
	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/middleware"
	"github.com/MrEthical07/authcore/router"
	"github.com/MrEthical07/authcore/store"
)

type refreshBody struct {
	RefreshToken string `json:"refreshToken"`
}

type tokenBody struct {
	Token string `json:"token"`
}

type emailBody struct {
	Email string `json:"email"`
}

type typedTokenBody struct {
	Token string                 `json:"token"`
	Type  store.VerificationType `json:"type"`
}

type typedEmailBody struct {
	Email string                 `json:"email"`
	Type  store.VerificationType `json:"type"`
}

type resetBody struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type changeEmailBody struct {
	NewEmail string `json:"newEmail"`
}

func register(e *authcore.Engine) router.Handler {
	return func(r *router.Request) (*router.Response, error) {
		var in authcore.RegisterInput
		if err := r.Decode(&in); err != nil {
			return nil, err
		}
		res, err := e.Register(requestContext(r), in)
		if err != nil {
			return nil, err
		}
		return router.Data(res), nil
	}
}

func login(e *authcore.Engine) router.Handler {
	return func(r *router.Request) (*router.Response, error) {
		var in authcore.LoginInput
		if err := r.Decode(&in); err != nil {
			return nil, err
		}
		res, err := e.Login(requestContext(r), in)
		if err != nil {
			return nil, err
		}
		return router.Data(res), nil
	}
}

func adminLogin(e *authcore.Engine) router.Handler {
	return func(r *router.Request) (*router.Response, error) {
		var in authcore.LoginInput
		if err := r.Decode(&in); err != nil {
			return nil, err
		}
		res, err := e.AdminLogin(requestContext(r), in)
		if err != nil {
			return nil, err
		}
		return router.Data(res), nil
	}
}

func refresh(e *authcore.Engine) router.Handler {
	return func(r *router.Request) (*router.Response, error) {
		var in refreshBody
		if err := r.Decode(&in); err != nil {
			return nil, err
		}
		if in.RefreshToken == "" {
			return nil, authcore.ErrRefreshRequired
		}
		sess, err := e.Refresh(requestContext(r), in.RefreshToken)
		if err != nil {
			return nil, err
		}
		return router.Data(sess), nil
	}
}

func logout(e *authcore.Engine) router.Handler {
	return func(r *router.Request) (*router.Response, error) {
		var in refreshBody
		if err := r.Decode(&in); err != nil {
			return nil, err
		}
		if err := e.Logout(requestContext(r), in.RefreshToken, r.AccessToken); err != nil {
			return nil, err
		}
		return router.Message("Logged out successfully"), nil
	}
}

func logoutAll(e *authcore.Engine) router.Handler {
	return func(r *router.Request) (*router.Response, error) {
		if r.Principal == nil {
			return nil, middleware.ErrAuthenticationRequired
		}
		if err := e.LogoutAll(requestContext(r), r.Principal.UserID(), r.AccessToken); err != nil {
			return nil, err
		}
		return router.Message("Logged out from all devices"), nil
	}
}

func verifyEmail(e *authcore.Engine) router.Handler {
	return func(r *router.Request) (*router.Response, error) {
		var in tokenBody
		if err := r.Decode(&in); err != nil {
			return nil, err
		}
		if err := e.VerifyEmail(requestContext(r), in.Token); err != nil {
			return nil, err
		}
		return router.Message("Email verified successfully"), nil
	}
}

func resendVerification(e *authcore.Engine) router.Handler {
	return func(r *router.Request) (*router.Response, error) {
		var in emailBody
		if err := r.Decode(&in); err != nil {
			return nil, err
		}
		if err := e.ResendVerification(requestContext(r), in.Email); err != nil {
			return nil, err
		}
		return router.Message("Verification email sent"), nil
	}
}

func verificationTokens(e *authcore.Engine) router.Handler {
	return func(r *router.Request) (*router.Response, error) {
		views, err := e.LatestVerificationTokens(requestContext(r), r.Principal.UserID())
		if err != nil {
			return nil, err
		}
		return router.Data(views), nil
	}
}

func checkToken(e *authcore.Engine) router.Handler {
	return func(r *router.Request) (*router.Response, error) {
		var in typedTokenBody
		if err := r.Decode(&in); err != nil {
			return nil, err
		}
		res, err := e.CheckVerificationToken(requestContext(r), in.Token, in.Type)
		if err != nil {
			return nil, err
		}
		return router.Data(res), nil
	}
}

func checkRateLimit(e *authcore.Engine) router.Handler {
	return func(r *router.Request) (*router.Response, error) {
		var in typedEmailBody
		if err := r.Decode(&in); err != nil {
			return nil, err
		}
		res, err := e.CheckRateLimit(requestContext(r), in.Email, in.Type)
		if err != nil {
			return nil, err
		}
		return router.Data(res), nil
	}
}

func forgotPassword(e *authcore.Engine) router.Handler {
	return func(r *router.Request) (*router.Response, error) {
		var in emailBody
		if err := r.Decode(&in); err != nil {
			return nil, err
		}
		if err := e.ForgotPassword(requestContext(r), in.Email); err != nil {
			return nil, err
		}
		return router.Message("If the email exists, a reset link has been sent"), nil
	}
}

func resetPassword(e *authcore.Engine) router.Handler {
	return func(r *router.Request) (*router.Response, error) {
		var in resetBody
		if err := r.Decode(&in); err != nil {
			return nil, err
		}
		if err := e.ResetPassword(requestContext(r), in.Token, in.NewPassword); err != nil {
			return nil, err
		}
		return router.Message("Password reset successfully"), nil
	}
}

func changePassword(e *authcore.Engine) router.Handler {
	return func(r *router.Request) (*router.Response, error) {
		if r.Principal == nil {
			return nil, middleware.ErrAuthenticationRequired
		}
		var in authcore.ChangePasswordInput
		if err := r.Decode(&in); err != nil {
			return nil, err
		}
		if err := e.ChangePassword(requestContext(r), r.Principal.UserID(), in); err != nil {
			return nil, err
		}
		return router.Message("Password changed successfully"), nil
	}
}

func changeEmail(e *authcore.Engine) router.Handler {
	return func(r *router.Request) (*router.Response, error) {
		var in changeEmailBody
		if err := r.Decode(&in); err != nil {
			return nil, err
		}
		if err := e.ChangeEmail(requestContext(r), r.Principal.UserID(), in.NewEmail); err != nil {
			return nil, err
		}
		return router.Message("Verification email sent to new address"), nil
	}
}

func verifyEmailChange(e *authcore.Engine) router.Handler {
	return func(r *router.Request) (*router.Response, error) {
		var in tokenBody
		if err := r.Decode(&in); err != nil {
			return nil, err
		}
		view, err := e.VerifyEmailChange(requestContext(r), r.Principal.UserID(), in.Token)
		if err != nil {
			return nil, err
		}
		return router.Data(view), nil
	}
}
