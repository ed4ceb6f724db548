// Package config loads the smartlaunch configuration.
//
// Configuration lives in a single directory, ~/.config/smartlaunch by
// default, which holds config.yaml and, for the file storage backend, the
// "state" directory with the persisted session and token.
//
// # Configuration File
//
//	smart:
//	  fhirBaseUrl: https://fhir.example.com/r4
//	  issuerBaseUrl: https://auth.example.com   # optional
//	  clientId: my-app
//	  redirectUri: http://localhost:8765/callback
//	  scope: launch/patient openid fhirUser profile offline_access
//	session:
//	  ttl: 10m
//	discovery:
//	  cacheTtl: 0s
//	http:
//	  timeout: 30s
//	  caCertFile: /etc/ssl/private-ca.pem
//	storage:
//	  type: file            # memory, file or valkey
//	  encryptionKey: ...    # base64, 32 bytes
//	  valkey:
//	    address: localhost:6379
//	    keyPrefix: "smartlaunch:"
//	oidc:
//	  verifyIdToken: true
//
// A missing config.yaml yields the defaults from GetDefaultConfig. The
// environment variables SMARTLAUNCH_FHIR_BASE_URL, SMARTLAUNCH_CLIENT_ID and
// SMARTLAUNCH_STORAGE_KEY override the corresponding file values.
package config
