package testserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// LoginHandler handles POST /auth/login
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, "email and password are required")
			return
		}

		user, err := s.users.getByEmail(req.Email)
		if err != nil || !checkPasswordHash(req.Password, user.Password) {
			writeError(w, http.StatusUnauthorized, "invalid email or password")
			return
		}

		accessToken, refreshToken, err := s.issuePair(user)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"accessToken":  accessToken,
			"refreshToken": refreshToken,
			"user":         user.profile(),
		})
	}
}

// ValidateHandler handles POST /auth/validate
func (s *Server) ValidateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.userFromClaims(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user": user.profile()})
	}
}

// RefreshTokenHandler handles POST /auth/refresh-token. Refresh tokens are
// single use; the response carries the rotated refresh token.
func (s *Server) RefreshTokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
			writeError(w, http.StatusBadRequest, "refreshToken is required")
			return
		}
		if header := bearerToken(r); header != "" && header != req.RefreshToken {
			writeError(w, http.StatusBadRequest, "refresh token mismatch")
			return
		}

		s.mu.Lock()
		delay, fail := s.refreshDelay, s.failRefresh
		s.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		if fail {
			writeError(w, http.StatusUnauthorized, "refresh rejected")
			return
		}

		userID, ok := s.refresh.redeem(req.RefreshToken)
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid refresh token")
			return
		}
		user, err := s.users.getByID(userID)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid refresh token")
			return
		}

		accessToken, refreshToken, err := s.issuePair(user)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"accessToken":  accessToken,
			"refreshToken": refreshToken,
		})
	}
}

// LogoutHandler handles POST /auth/logout
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		fail := s.failLogout
		s.mu.Unlock()
		if fail {
			writeError(w, http.StatusInternalServerError, "logout unavailable")
			return
		}

		user, ok := s.userFromClaims(w, r)
		if !ok {
			return
		}
		s.refresh.revokeUser(user.ID)
		w.WriteHeader(http.StatusNoContent)
	}
}

// ForgotPasswordHandler handles POST /auth/forgot-password. It always
// answers 202 so account existence is not revealed.
func (s *Server) ForgotPasswordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email string `json:"email"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
			writeError(w, http.StatusBadRequest, "email is required")
			return
		}
		if user, err := s.users.getByEmail(req.Email); err == nil {
			s.mu.Lock()
			s.resetTokens[uuid.New().String()] = user.ID
			s.mu.Unlock()
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

// ResetPasswordHandler handles POST /auth/reset-password
func (s *Server) ResetPasswordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Token    string `json:"token"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, "token and password are required")
			return
		}

		s.mu.Lock()
		userID, ok := s.resetTokens[req.Token]
		delete(s.resetTokens, req.Token)
		s.mu.Unlock()
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid reset token")
			return
		}
		if err := s.users.setPassword(userID, req.Password); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ChangePasswordHandler handles POST /auth/change-password
func (s *Server) ChangePasswordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			CurrentPassword string `json:"currentPassword"`
			NewPassword     string `json:"newPassword"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NewPassword == "" {
			writeError(w, http.StatusBadRequest, "currentPassword and newPassword are required")
			return
		}
		user, ok := s.userFromClaims(w, r)
		if !ok {
			return
		}
		if !checkPasswordHash(req.CurrentPassword, user.Password) {
			writeError(w, http.StatusBadRequest, "current password is incorrect")
			return
		}
		if err := s.users.setPassword(user.ID, req.NewPassword); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) issuePair(user *User) (string, string, error) {
	now := s.nowFunc()
	accessToken, err := s.signer.CreateAccessToken(user, s.currentGeneration(), now, s.accessTTL)
	if err != nil {
		return "", "", err
	}
	refreshToken, err := s.refresh.create(user.ID, now)
	if err != nil {
		return "", "", err
	}
	return accessToken, refreshToken, nil
}

func (s *Server) userFromClaims(w http.ResponseWriter, r *http.Request) (*User, bool) {
	userID, err := strconv.ParseInt(claimsFrom(r).Subject, 10, 64)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid subject")
		return nil, false
	}
	user, err := s.users.getByID(userID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unknown user")
		return nil, false
	}
	return user, true
}
