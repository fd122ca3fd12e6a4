package models

// CredentialsRequest is the body of the login and register endpoints
type CredentialsRequest struct {
	Email    string `json:"email" binding:"required,email,max=254"`
	Password string `json:"password" binding:"required,min=6,max=72"`
}

// AuthResponse is returned after a foreground auth action
type AuthResponse struct {
	Success  bool          `json:"success"`
	Identity *Identity     `json:"identity,omitempty"`
	Session  *SessionState `json:"session,omitempty"`
	// Set when sign-up succeeded but the account needs email confirmation
	ConfirmationRequired bool   `json:"confirmationRequired,omitempty"`
	Error                string `json:"error,omitempty"`
}

// SessionState is the UI-facing session signal
type SessionState struct {
	Identity        *Identity `json:"identity"`
	IsAuthenticated bool      `json:"isAuthenticated"`
	Loading         bool      `json:"loading"`
	SessionReady    bool      `json:"sessionReady"`
	Phase           string    `json:"phase"`
	DisplayName     string    `json:"displayName"`
	Initial         string    `json:"initial"`
}

// TeacherCard is one listing row as the UI renders it
type TeacherCard struct {
	TeacherSummary
	UpdatedLabel string `json:"updatedLabel"`
}

// ListingResponse is the body of the listing endpoint
type ListingResponse struct {
	Rows       []TeacherCard `json:"rows"`
	TotalCount int           `json:"totalCount"`
	Page       int           `json:"page"`
	PageSize   int           `json:"pageSize"`
	Loading    bool          `json:"loading"`
	Source     ListingSource `json:"source"`
	Stale      bool          `json:"stale"`
	Error      string        `json:"error,omitempty"`
}
