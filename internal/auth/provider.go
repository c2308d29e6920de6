package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	fbauth "firebase.google.com/go/v4/auth"
	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/kidquest/internal/model"
	"github.com/dukerupert/kidquest/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = store.ErrEmailTaken
)

const minPasswordLength = 8

// Verifier turns a bearer token into the caller's identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (AuthContext, error)
}

// Session is returned after a successful sign-up or sign-in.
type Session struct {
	Token   string         `json:"token"`
	Account *model.Account `json:"account"`
}

// Local is the built-in credential provider backed by the accounts table.
type Local struct {
	accounts *store.AccountStore
	tokens   *JWTManager
	cost     int
}

func NewLocal(accounts *store.AccountStore, tokens *JWTManager, bcryptCost int) *Local {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Local{accounts: accounts, tokens: tokens, cost: bcryptCost}
}

func (l *Local) SignUp(ctx context.Context, email, password string) (*Session, error) {
	email = strings.TrimSpace(email)
	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("email is invalid: %w", ErrInvalidCredentials)
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("password must be at least %d characters: %w", minPasswordLength, ErrInvalidCredentials)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), l.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	account, err := l.accounts.Create(email, string(hash))
	if err != nil {
		return nil, err
	}
	return l.session(account)
}

func (l *Local) SignIn(ctx context.Context, email, password string) (*Session, error) {
	account, err := l.accounts.GetByEmail(email)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return l.session(account)
}

func (l *Local) session(account *model.Account) (*Session, error) {
	token, err := l.tokens.GenerateAccessToken(account.ID, account.Email)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, Account: account}, nil
}

// Verify accepts account tokens issued by SignUp or SignIn.
func (l *Local) Verify(ctx context.Context, token string) (AuthContext, error) {
	c, err := l.tokens.Validate(token)
	if err != nil {
		return AuthContext{}, err
	}
	if c.Role != RoleAccount {
		return AuthContext{}, fmt.Errorf("%w: not an account token", ErrInvalidToken)
	}
	account, err := l.accounts.GetByID(c.AccountID)
	if err != nil {
		return AuthContext{}, err
	}
	if account == nil {
		return AuthContext{}, fmt.Errorf("%w: account no longer exists", ErrInvalidToken)
	}
	return AuthContext{AccountID: account.ID, Email: account.Email}, nil
}

// IDTokenVerifier is the part of the Firebase auth client we use.
type IDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error)
}

// Firebase verifies ID tokens minted by Firebase Authentication. Sign-up
// and sign-in happen in the client SDK, so only Verify is offered here.
type Firebase struct {
	client IDTokenVerifier
}

func NewFirebase(client IDTokenVerifier) *Firebase {
	return &Firebase{client: client}
}

func (f *Firebase) Verify(ctx context.Context, token string) (AuthContext, error) {
	if token == "" {
		return AuthContext{}, fmt.Errorf("%w: token is empty", ErrInvalidToken)
	}
	tok, err := f.client.VerifyIDToken(ctx, token)
	if err != nil {
		return AuthContext{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	email, _ := tok.Claims["email"].(string)
	return AuthContext{AccountID: tok.UID, Email: email}, nil
}
