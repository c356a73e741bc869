// Package secrets resolves ${secret:name} references in configuration
// values.
//
// Secrets are looked up in provider order; the first provider that has
// the secret wins:
//
//	r := secrets.NewResolver(
//		secrets.NewEnvProvider("SPENDCAP_SECRET_"),
//		secrets.NewFileProvider("/run/secrets"),
//	)
//
//	password, err := r.Resolve(ctx, "${secret:smtp-password}")
//
// Values without references are returned unchanged, so plain values and
// references can be mixed freely in one file.
package secrets
