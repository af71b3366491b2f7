package security

import (
	"encoding/json"
	"fmt"
	"os"

	"trendscli/internal/errors"
)

// ApplicationSalt binds sealed credential files to this program. A
// payload sealed with a different salt cannot be opened here.
const ApplicationSalt = "Trends-CLI-Popularity-Index-v1-Salt-2025"

// Credentials is the service login pair sealed into the credentials
// file and replayed on the session login form.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SealCredentials encrypts creds and writes the payload to path,
// replacing any previous file. The file is owner-readable only.
func SealCredentials(creds Credentials, path string) error {
	if creds.Username == "" || creds.Password == "" {
		return errors.NewAppValidationError("credentials require both username and password")
	}

	plaintext, err := json.Marshal(creds)
	if err != nil {
		return errors.NewConfigError("encode credentials", err)
	}

	payload, err := EncryptCredentials(plaintext, []byte(ApplicationSalt), nil)
	zeroBytes(plaintext)
	if err != nil {
		return errors.NewConfigError("seal credentials", err)
	}

	out, err := json.Marshal(payload)
	if err != nil {
		return errors.NewConfigError("encode sealed payload", err)
	}

	if err := os.WriteFile(path, out, 0600); err != nil {
		return errors.NewConfigError(fmt.Sprintf("write credentials file %s", path), err)
	}
	return nil
}

// OpenCredentials reads path and unseals the credentials stored there.
func OpenCredentials(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewConfigError(fmt.Sprintf("read credentials file %s", path), err)
	}

	var payload EncryptedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, errors.NewConfigError(fmt.Sprintf("decode sealed payload in %s", path), err)
	}

	secure, err := DecryptCredentials(&payload, []byte(ApplicationSalt), nil)
	if err != nil {
		return nil, errors.NewConfigError(fmt.Sprintf("unseal credentials in %s", path), err)
	}
	defer secure.Clear()

	var creds Credentials
	if err := json.Unmarshal(secure.Data(), &creds); err != nil {
		return nil, errors.NewConfigError("decode credentials", err)
	}
	return &creds, nil
}
