package portalauth

import (
	"context"
	"encoding/json"
	"time"
)

// Role classifies a portal account. Anonymous intake flows create VISITOR
// placeholders; completing registration promotes the account to PATIENT.
type Role string

const (
	RoleVisitor Role = "VISITOR"
	RolePatient Role = "PATIENT"
)

// VisitStatus is the lifecycle state of an intake visit. Only the TEMPORARY
// draft state is managed here; confirmed visits transition elsewhere.
type VisitStatus string

const (
	VisitTemporary VisitStatus = "TEMPORARY"
	VisitConfirmed VisitStatus = "CONFIRMED"
	VisitCancelled VisitStatus = "CANCELLED"
	VisitCompleted VisitStatus = "COMPLETED"
)

// User is the portal account record. Email is unique and stored lowercase.
// TokenGeneration is a monotonic counter stamped into refresh tokens; bumping
// it invalidates every refresh token minted before the bump. ResetToken and
// ResetTokenExpiry are either both set or both zero.
type User struct {
	ID               string
	Email            string
	PasswordHash     string
	Role             Role
	TokenGeneration  uint32
	ResetToken       string
	ResetTokenExpiry time.Time
	FirstName        string
	LastName         string
	Telephone        string
}

// CreditCard holds the gateway reference for a stored payment method.
// CCNumber is the masked display form only; the raw PAN never reaches this
// system. At most one card per user is Active.
type CreditCard struct {
	ID       string
	UserID   string
	CCType   string
	CCToken  string
	CCNumber string
	CCExpire string
	Active   bool
}

// Address is a postal address owned by a user. Superseded addresses are
// deactivated, never deleted; at most one is Active per user.
type Address struct {
	ID         string
	UserID     string
	AddressOne string
	AddressTwo string
	City       string
	State      string
	Zip        string
	Active     bool
}

// SameContent reports whether two addresses carry identical postal fields,
// ignoring identity and active state. Stores use it to reuse rows instead of
// duplicating them.
func (a Address) SameContent(b Address) bool {
	return a.AddressOne == b.AddressOne &&
		a.AddressTwo == b.AddressTwo &&
		a.City == b.City &&
		a.State == b.State &&
		a.Zip == b.Zip
}

// Visit is an intake visit. A TEMPORARY visit is the single draft slot for
// its (user, type) pair and is updated in place on re-save.
type Visit struct {
	ID            string
	UserID        string
	Type          string
	Status        VisitStatus
	Questionnaire json.RawMessage
	AddressOne    string
	AddressTwo    string
	City          string
	State         string
	Zip           string
	Telephone     string
}

// RegisterInput carries the registration form. Role defaults to PATIENT when
// empty; registering is how placeholder VISITOR accounts get promoted.
type RegisterInput struct {
	Email     string
	Password  string
	Role      Role
	FirstName string
	LastName  string
	Telephone string
}

// CardInput is the raw card form handed to the payment gateway for
// tokenization. It is never persisted.
type CardInput struct {
	Number     string
	Expiration string
	CVV        string
	Name       string
}

// TokenizedCard is the gateway's answer to a successful tokenization.
type TokenizedCard struct {
	Type         string
	Token        string
	MaskedNumber string
}

// AddressInput is the address form for SaveAddress.
type AddressInput struct {
	AddressOne string
	AddressTwo string
	City       string
	State      string
	Zip        string
}

// VisitInput is the draft-visit payload for SaveTemporaryVisit.
type VisitInput struct {
	Type          string
	Questionnaire json.RawMessage
	AddressOne    string
	AddressTwo    string
	City          string
	State         string
	Zip           string
	Telephone     string
}

// TokenPair is one issued session: a short-lived access token and a
// longer-lived refresh token, signed with independent secrets.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Registration outcome messages. An attempt against an existing PATIENT is
// answered with MessageExists rather than an error.
const (
	MessageOK     = "OK"
	MessageExists = "EXISTS"
)

// RegisterResult is returned by [Engine.Register]. User and Tokens are nil
// when Message is MessageExists.
type RegisterResult struct {
	Message string
	User    *User
	Tokens  *TokenPair
}

// LoginResult is returned by [Engine.Login] and [Engine.ResetPassword].
type LoginResult struct {
	User   *User
	Tokens TokenPair
}

// CredentialStore is the narrow persistence interface the engine runs
// against. Implementations must make BumpTokenGeneration an atomic
// read-increment-write and the three active-record operations atomic as a
// unit, so that two concurrent saves can never leave two active rows.
//
// Lookups return [ErrUserNotFound] when no record matches; CreateUser and an
// UpdateUser that changes the email return [ErrDuplicateEmail] when the email
// is already indexed. UpdateUser never writes TokenGeneration: the counter
// has exactly one writer, BumpTokenGeneration, so an update from a copy
// loaded before a concurrent bump cannot roll it back.
type CredentialStore interface {
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByResetToken(ctx context.Context, token string) (*User, error)
	CreateUser(ctx context.Context, user *User) (*User, error)
	UpdateUser(ctx context.Context, user *User) (*User, error)

	// BumpTokenGeneration atomically increments the user's generation
	// counter and returns the new value.
	BumpTokenGeneration(ctx context.Context, userID string) (uint32, error)

	// SwapActiveCard deactivates every active card owned by the user and
	// creates card as the single active one.
	SwapActiveCard(ctx context.Context, userID string, card CreditCard) (*CreditCard, error)

	// SwapActiveAddress deactivates every active address owned by the user,
	// then reactivates an existing row with identical content or creates a
	// new one.
	SwapActiveAddress(ctx context.Context, userID string, addr Address) (*Address, error)

	// UpsertTemporaryVisit updates the TEMPORARY visit for (user, type) in
	// place, creating it when absent.
	UpsertTemporaryVisit(ctx context.Context, userID string, visit Visit) (*Visit, error)

	CardsByUser(ctx context.Context, userID string) ([]CreditCard, error)
	AddressesByUser(ctx context.Context, userID string) ([]Address, error)
	VisitsByUser(ctx context.Context, userID string) ([]Visit, error)
}

// PaymentGateway tokenizes raw card input. A decline surfaces as
// [ErrPaymentDeclined]; the engine performs no storage writes in that case.
type PaymentGateway interface {
	Tokenize(ctx context.Context, in CardInput) (TokenizedCard, error)
}
