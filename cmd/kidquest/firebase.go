package main

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/dukerupert/kidquest/internal/config"
)

type firebaseClients struct {
	firestore *firestore.Client
	auth      *fbauth.Client
}

func newFirebase(ctx context.Context, cfg config.StoreConfig) (*firebaseClients, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	var fbCfg *firebase.Config
	if cfg.ProjectID != "" {
		fbCfg = &firebase.Config{ProjectID: cfg.ProjectID}
	}
	app, err := firebase.NewApp(ctx, fbCfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}

	fs, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	authClient, err := app.Auth(ctx)
	if err != nil {
		fs.Close()
		return nil, fmt.Errorf("firebase auth client: %w", err)
	}
	return &firebaseClients{firestore: fs, auth: authClient}, nil
}

func (c *firebaseClients) Close() error {
	return c.firestore.Close()
}
