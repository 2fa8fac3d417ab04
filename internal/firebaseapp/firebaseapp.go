// Package firebaseapp builds the shared Firebase Admin app used for
// Firestore, Auth and Cloud Messaging.
package firebaseapp

import (
	"context"
	"fmt"
	"os"

	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"

	"waterFastAPI/internal/config"
	"waterFastAPI/internal/logger"
)

// New initializes the app. Credentials come from FCM_SERVICE_ACCOUNT_JSON
// first, then FIREBASE_CREDENTIALS_FILE, then application default credentials.
func New(ctx context.Context, cfg config.Config) (*firebase.App, error) {
	var opts []option.ClientOption

	switch {
	case len(cfg.FirebaseCredentialsJSON) > 0:
		opts = append(opts, option.WithCredentialsJSON(cfg.FirebaseCredentialsJSON))
		logger.Info("firebase: using credentials from FCM_SERVICE_ACCOUNT_JSON")
	case cfg.FirebaseCredentialsFile != "":
		if _, err := os.Stat(cfg.FirebaseCredentialsFile); err != nil {
			return nil, fmt.Errorf("firebase credentials file %s: %w", cfg.FirebaseCredentialsFile, err)
		}
		opts = append(opts, option.WithCredentialsFile(cfg.FirebaseCredentialsFile))
		logger.Info("firebase: using credentials file", "path", cfg.FirebaseCredentialsFile)
	default:
		logger.Warn("firebase: no explicit credentials, falling back to application default credentials")
	}

	var fbCfg *firebase.Config
	if cfg.FirebaseProjectID != "" {
		fbCfg = &firebase.Config{ProjectID: cfg.FirebaseProjectID}
	}

	app, err := firebase.NewApp(ctx, fbCfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	return app, nil
}
