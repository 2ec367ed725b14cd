package routes

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/tradexcel/backend/internal/account"
	"github.com/tradexcel/backend/internal/apperr"
	"github.com/tradexcel/backend/internal/config"
	"github.com/tradexcel/backend/internal/middleware"
	"github.com/tradexcel/backend/internal/registration"
	"github.com/tradexcel/backend/internal/token"
)

const dobLayout = "2006-01-02"

// UserHandler exposes registration, session and profile endpoints.
type UserHandler struct {
	cfg      config.Config
	reg      *registration.Service
	tokens   *token.Service
	accounts *account.Service
}

// NewUserHandler builds a user HTTP handler.
func NewUserHandler(cfg config.Config, reg *registration.Service, tokens *token.Service, accounts *account.Service) *UserHandler {
	return &UserHandler{cfg: cfg, reg: reg, tokens: tokens, accounts: accounts}
}

// RegisterUserRoutes wires the public and protected user endpoints.
func RegisterUserRoutes(r fiber.Router, h *UserHandler, guard fiber.Handler, loginLimiter, registerLimiter fiber.Handler) {
	group := r.Group("/users")

	group.Post("/register", registerLimiter, h.Register)
	group.Post("/verify-otp", h.VerifyOTP)
	group.Post("/login", loginLimiter, h.Login)
	group.Post("/refresh-token", h.RefreshToken)

	protected := group.Group("", guard)
	protected.Post("/logout", h.Logout)
	protected.Patch("/update", h.Update)
	protected.Patch("/change-password-pin", h.ChangePasswordPIN)
	protected.Get("/profile", h.Profile)
	protected.Get("/name", h.Name)
}

type userJSON struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	PhoneNumber string    `json:"phoneNumber"`
	CountryCode string    `json:"countryCode"`
	DOB         string    `json:"dob"`
	OTPVerified bool      `json:"otpVerified"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toUserJSON(a account.Account) userJSON {
	return userJSON{
		ID:          a.ID,
		Name:        a.Name,
		Username:    a.Username,
		Email:       a.Email,
		PhoneNumber: a.PhoneNumber,
		CountryCode: a.CountryCode,
		DOB:         a.DOB.Format(dobLayout),
		OTPVerified: a.OTPVerified,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

type registerRequest struct {
	Name        string `json:"name"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	DOB         string `json:"dob"`
	PhoneNumber string `json:"phoneNumber"`
	CountryCode string `json:"countryCode"`
	PIN         string `json:"pin"`
	OTPMethod   string `json:"otpMethod"`
}

// Register submits a registration and triggers OTP dispatch.
func (h *UserHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation(err.Error())
	}

	var dob time.Time
	if req.DOB != "" {
		parsed, err := time.Parse(dobLayout, req.DOB)
		if err != nil {
			return apperr.Validation("dob must be formatted as YYYY-MM-DD")
		}
		dob = parsed
	}

	err := h.reg.Submit(c.UserContext(), registration.SubmitInput{
		Name:        req.Name,
		Username:    req.Username,
		Email:       req.Email,
		Password:    req.Password,
		DOB:         dob,
		PhoneNumber: req.PhoneNumber,
		CountryCode: req.CountryCode,
		PIN:         req.PIN,
		OTPMethod:   req.OTPMethod,
	})
	if err != nil {
		return err
	}

	return respond(c, http.StatusOK, nil, "User registered successfully. Please verify the OTP.")
}

type verifyOTPRequest struct {
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
	OTP         string `json:"otp"`
	OTPMethod   string `json:"otpMethod"`
}

// VerifyOTP checks the submitted code and promotes the pending registration.
func (h *UserHandler) VerifyOTP(c *fiber.Ctx) error {
	var req verifyOTPRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation(err.Error())
	}

	acct, err := h.reg.Verify(c.UserContext(), registration.VerifyInput{
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		OTPMethod:   req.OTPMethod,
		OTP:         req.OTP,
	})
	if err != nil {
		return err
	}

	return respond(c, http.StatusOK, fiber.Map{"user": toUserJSON(acct)},
		"User verified and confirmed successfully. You can now log in.")
}

type loginRequest struct {
	EmailOrUsername string `json:"emailOrUsername"`
	Password        string `json:"password"`
	PIN             string `json:"pin"`
}

// Login validates credentials, sets the auth cookies and returns the token
// pair alongside the account.
func (h *UserHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation(err.Error())
	}

	acct, pair, err := h.tokens.Login(c.UserContext(), req.EmailOrUsername, req.Password, req.PIN)
	if err != nil {
		return err
	}

	setAuthCookies(c, h.cfg, pair)
	return respond(c, http.StatusOK, fiber.Map{
		"user":         toUserJSON(acct),
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	}, "User logged in successfully")
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// RefreshToken rotates the refresh token presented via cookie or body and
// re-sets the auth cookies.
func (h *UserHandler) RefreshToken(c *fiber.Ctx) error {
	incoming := c.Cookies(RefreshTokenCookie)
	if incoming == "" {
		var req refreshRequest
		_ = c.BodyParser(&req)
		incoming = req.RefreshToken
	}
	if incoming == "" {
		return apperr.Unauthorized("unauthorized request")
	}

	_, pair, err := h.tokens.Rotate(c.UserContext(), incoming)
	if err != nil {
		return err
	}

	setAuthCookies(c, h.cfg, pair)
	return respond(c, http.StatusOK, fiber.Map{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	}, "Access token refreshed successfully")
}

// Logout clears the stored refresh token and expires the auth cookies.
func (h *UserHandler) Logout(c *fiber.Ctx) error {
	acct, ok := middleware.AccountFromCtx(c)
	if !ok {
		return apperr.Unauthorized("missing access token")
	}

	if err := h.tokens.Logout(c.UserContext(), acct.ID); err != nil {
		return err
	}

	clearAuthCookies(c, h.cfg)
	return respond(c, http.StatusOK, fiber.Map{}, "User logged out successfully")
}

type updateRequest struct {
	Name        *string `json:"name"`
	Username    *string `json:"username"`
	Email       *string `json:"email"`
	PhoneNumber *string `json:"phoneNumber"`
	DOB         *string `json:"dob"`
}

// Update applies a partial profile update.
func (h *UserHandler) Update(c *fiber.Ctx) error {
	acct, ok := middleware.AccountFromCtx(c)
	if !ok {
		return apperr.Unauthorized("missing access token")
	}

	var req updateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation(err.Error())
	}

	patch := account.ProfilePatch{
		Name:        req.Name,
		Username:    req.Username,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
	}
	if req.DOB != nil {
		dob, err := time.Parse(dobLayout, *req.DOB)
		if err != nil {
			return apperr.Validation("dob must be formatted as YYYY-MM-DD")
		}
		patch.DOB = &dob
	}

	updated, err := h.accounts.UpdateProfile(c.UserContext(), acct.ID, patch)
	if err != nil {
		return err
	}

	return respond(c, http.StatusOK, fiber.Map{"user": toUserJSON(updated)}, "User details updated successfully")
}

type changePasswordPINRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
	OldPIN      string `json:"oldPin"`
	NewPIN      string `json:"newPin"`
}

// ChangePasswordPIN updates the password and/or PIN after verifying the old
// values.
func (h *UserHandler) ChangePasswordPIN(c *fiber.Ctx) error {
	acct, ok := middleware.AccountFromCtx(c)
	if !ok {
		return apperr.Unauthorized("missing access token")
	}

	var req changePasswordPINRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation(err.Error())
	}

	err := h.accounts.ChangeCredentials(c.UserContext(), acct.ID, account.ChangeCredentialsInput{
		OldPassword: req.OldPassword,
		NewPassword: req.NewPassword,
		OldPIN:      req.OldPIN,
		NewPIN:      req.NewPIN,
	})
	if err != nil {
		return err
	}

	return respond(c, http.StatusOK, fiber.Map{}, "Password and/or PIN changed successfully")
}

// Profile returns the caller's profile without credential fields.
func (h *UserHandler) Profile(c *fiber.Ctx) error {
	acct, ok := middleware.AccountFromCtx(c)
	if !ok {
		return apperr.Unauthorized("missing access token")
	}

	current, err := h.accounts.Get(c.UserContext(), acct.ID)
	if err != nil {
		return err
	}

	return respond(c, http.StatusOK, fiber.Map{
		"name":        current.Name,
		"email":       current.Email,
		"phoneNumber": current.PhoneNumber,
		"username":    current.Username,
		"dob":         current.DOB.Format(dobLayout),
	}, "Profile fetched successfully")
}

// Name returns only the caller's display name.
func (h *UserHandler) Name(c *fiber.Ctx) error {
	acct, ok := middleware.AccountFromCtx(c)
	if !ok {
		return apperr.Unauthorized("missing access token")
	}

	current, err := h.accounts.Get(c.UserContext(), acct.ID)
	if err != nil {
		return err
	}

	return respond(c, http.StatusOK, fiber.Map{"name": current.Name}, "Name fetched successfully")
}
