package auth

import (
	"context"
	"fmt"
	"time"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

// firebaseNamespace scopes the name-based UUIDs derived from Firebase UIDs.
var firebaseNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://firebase.google.com/"))

type idTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error)
}

// FirebaseProvider verifies Firebase ID tokens with the Admin SDK.
type FirebaseProvider struct {
	verifier idTokenVerifier
}

// NewFirebaseProvider initializes the Firebase Admin SDK from a service
// account file.
func NewFirebaseProvider(ctx context.Context, credentialsPath string) (*FirebaseProvider, error) {
	if credentialsPath == "" {
		return nil, fmt.Errorf("FIREBASE_CREDENTIALS_PATH is required")
	}

	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsPath))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get Auth client: %w", err)
	}
	return &FirebaseProvider{verifier: client}, nil
}

// FirebaseUserID maps a Firebase UID onto the UUID used as owner id.
func FirebaseUserID(uid string) uuid.UUID {
	return uuid.NewSHA1(firebaseNamespace, []byte(uid))
}

// Session implements Provider.
func (p *FirebaseProvider) Session(ctx context.Context, accessToken string) (*Session, error) {
	if accessToken == "" {
		return nil, ErrNoSession
	}

	token, err := p.verifier.VerifyIDToken(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}

	user := User{ID: FirebaseUserID(token.UID), Role: "authenticated"}
	if email, ok := token.Claims["email"].(string); ok {
		user.Email = email
	}

	s := &Session{User: user, AccessToken: accessToken}
	if token.Expires > 0 {
		s.ExpiresAt = time.Unix(token.Expires, 0).UTC()
	}
	return s, nil
}
