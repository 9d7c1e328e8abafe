package testserver

// Route path constants
const (
	RouteAuthLogin          = "/auth/login"
	RouteAuthValidate       = "/auth/validate"
	RouteAuthRefreshToken   = "/auth/refresh-token"
	RouteAuthLogout         = "/auth/logout"
	RouteAuthForgotPassword = "/auth/forgot-password"
	RouteAuthResetPassword  = "/auth/reset-password"
	RouteAuthChangePassword = "/auth/change-password"

	RouteResource = "/{resource}"

	HeaderTenantID = "x-tenant-id"
)

func (s *Server) initRoutes() {
	s.RegisterRouteFunc("POST "+RouteAuthLogin, ChainMiddleware(s.LoginHandler(), s.RecordMiddleware))
	s.RegisterRouteFunc("POST "+RouteAuthRefreshToken, ChainMiddleware(s.RefreshTokenHandler(), s.RecordMiddleware))
	s.RegisterRouteFunc("POST "+RouteAuthForgotPassword, ChainMiddleware(s.ForgotPasswordHandler(), s.RecordMiddleware))
	s.RegisterRouteFunc("POST "+RouteAuthResetPassword, ChainMiddleware(s.ResetPasswordHandler(), s.RecordMiddleware))

	s.RegisterRouteFunc("POST "+RouteAuthValidate, ChainMiddleware(s.ValidateHandler(), s.RecordMiddleware, s.RequireAuth))
	s.RegisterRouteFunc("POST "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), s.RecordMiddleware, s.RequireAuth))
	s.RegisterRouteFunc("POST "+RouteAuthChangePassword, ChainMiddleware(s.ChangePasswordHandler(), s.RecordMiddleware, s.RequireAuth))

	s.RegisterRouteFunc("GET "+RouteResource, ChainMiddleware(s.ListResourceHandler(), s.RecordMiddleware, s.RequireAuth, s.RequireTenant))
	s.RegisterRouteFunc("POST "+RouteResource, ChainMiddleware(s.CreateResourceHandler(), s.RecordMiddleware, s.RequireAuth, s.RequireTenant))
}
