package app

import (
	"net/http"

	"propie/api/internal/authpw"
	"propie/api/internal/fingerprint"
)

func sessionPayload(session Session) map[string]any {
	return map[string]any{
		"accessToken":  session.Token,
		"refreshToken": session.RefreshToken,
		"userId":       session.UserID,
		"userName":     session.UserName,
		"email":        session.Email,
		"role":         session.Role,
		"expiresAt":    session.ExpiresAt.Unix(),
	}
}

func (s *HTTPServer) handleAuthSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
		Role        string `json:"role"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	resp, err := s.service.SignUp(r.Context(), authpw.SignUpRequest{
		Email:       body.Email,
		Password:    body.Password,
		DisplayName: body.DisplayName,
		Role:        body.Role,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	response := map[string]any{
		"userId":  resp.UserID,
		"message": "Please check your email to verify your account",
	}
	// Dev bypass: no mailer, so hand the token back directly.
	if resp.DevVerificationToken != "" {
		response["devVerificationToken"] = resp.DevVerificationToken
		response["message"] = "Account created. Verify your email to continue."
	}
	writeJSON(w, http.StatusCreated, response)
}

func (s *HTTPServer) handleAuthSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email       string                `json:"email"`
		Password    string                `json:"password"`
		Fingerprint *fingerprint.Snapshot `json:"fingerprint"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	result, err := s.service.SignIn(r.Context(), body.Email, body.Password, body.Fingerprint)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	response := sessionPayload(result.Session)
	if result.Assessment != nil {
		response["risk"] = result.Assessment
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleAuthVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.VerifyEmail(r.Context(), body.Token); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Email verified successfully",
	})
}

func (s *HTTPServer) handleAuthRequestReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	token, err := s.service.RequestPasswordReset(r.Context(), body.Email)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	response := map[string]any{
		"message": "If an account exists, a reset email has been sent",
	}
	if token != "" {
		response["devResetToken"] = token
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleAuthResetPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.ResetPassword(r.Context(), body.Token, body.NewPassword); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Password reset successfully",
	})
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
		return
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"userName":      session.UserName,
		"userId":        session.UserID,
		"email":         session.Email,
		"role":          session.Role,
	})
}

func (s *HTTPServer) handleSessionRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	session, err := s.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func (s *HTTPServer) handleSessionLogout(w http.ResponseWriter, r *http.Request) {
	session := Session{}
	if token := bearerToken(r); token != "" {
		if parsed, err := s.service.SessionFromToken(r.Context(), token); err == nil {
			session = parsed
		}
	}
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = decodeBody(r, &body)
	if session.JTI != "" || body.RefreshToken != "" {
		if err := s.service.Logout(r.Context(), session, body.RefreshToken); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleFingerprint(w http.ResponseWriter, r *http.Request, session Session) {
	var snapshot fingerprint.Snapshot
	if err := decodeBody(r, &snapshot); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	assessment, err := s.service.CheckFingerprint(r.Context(), session, snapshot)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"assessment":     assessment,
		"reauthenticate": assessment.Action == fingerprint.ActionStepUp || assessment.Action == fingerprint.ActionDeny,
	})
}
