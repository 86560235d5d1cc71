package collab

import "golang.org/x/crypto/bcrypt"

// BcryptVerifier is the default PasswordVerifier: the client submits
// md5(password), which is checked against a bcrypt hash of that md5 string,
// matching the original server's bcrypt.checkpw(password_md5, user.bcrypt).
type BcryptVerifier struct{}

func (BcryptVerifier) Check(passwordMD5, storedHash string) bool {
	if storedHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(passwordMD5)) == nil
}

// HashPassword produces the bcrypt hash stored against a user, given the
// client-shape md5(password) string. Exposed for account-creation tooling
// and tests; the session login path only ever calls Check.
func HashPassword(passwordMD5 string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(passwordMD5), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
