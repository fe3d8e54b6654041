package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/open-runtime/runtime-aot-client-examples/internal/di"
	"github.com/open-runtime/runtime-aot-client-examples/pkg/interfaces/logger"
	"github.com/open-runtime/runtime-aot-client-examples/pkg/secrets"
)

func (a *app) secretsCheck(ctx context.Context) error {
	container, err := di.New(ctx, di.Options{Config: a.cfg, Logger: a.log})
	if err != nil {
		return err
	}
	defer container.Close()

	a.log.Debug("resolving session secrets",
		logger.Field{Key: "backend", Value: a.cfg.Secrets.Backend},
		logger.Field{Key: "namespace", Value: a.cfg.Bootstrap.SecretNamespace},
	)
	material, err := container.Secrets.FetchMaterial(ctx)
	if err != nil {
		return fmt.Errorf("secrets check: %w", err)
	}

	rows := map[string]string{
		a.cfg.Bootstrap.HMACSecretName:       material.HMACKey,
		a.cfg.Bootstrap.EncryptionSecretName: material.EncryptionKey,
		a.cfg.Bootstrap.APISecretName:        material.APIKey,
	}
	names := make([]string, 0, len(rows))
	for name := range rows {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintf(a.out, "backend: %s\n", a.cfg.Secrets.Backend)
	for _, name := range names {
		fmt.Fprintf(a.out, "%s: %s\n", name, secrets.MaskValue(rows[name]))
	}
	return nil
}
