package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Credential - результат успешного входа. Создаётся один раз и больше не меняется.
type Credential struct {
	AccountID int64
	IssuedAt  time.Time
	Session   string
	Filename  string
}

// CredentialRef - ссылка на сохранённый файл без самого секрета.
type CredentialRef struct {
	AccountID int64     `json:"account_id"`
	IssuedAt  time.Time `json:"issued_at"`
	Filename  string    `json:"filename"`
}

func (c Credential) Ref() CredentialRef {
	return CredentialRef{AccountID: c.AccountID, IssuedAt: c.IssuedAt, Filename: c.Filename}
}

var credentialFileRe = regexp.MustCompile(`^session_(\d+)_(\d+)\.txt$`)

// CredentialFilename: session_{accountId}_{issuedAtUnixSeconds}.txt
func CredentialFilename(accountID int64, issuedAt time.Time) string {
	return fmt.Sprintf("session_%d_%d.txt", accountID, issuedAt.Unix())
}

// ParseCredentialFilename - обратная операция; ok=false для любых посторонних имён.
func ParseCredentialFilename(name string) (CredentialRef, bool) {
	m := credentialFileRe.FindStringSubmatch(name)
	if m == nil {
		return CredentialRef{}, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return CredentialRef{}, false
	}
	ts, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return CredentialRef{}, false
	}
	return CredentialRef{AccountID: id, IssuedAt: time.Unix(ts, 0).UTC(), Filename: name}, true
}

// Identity - кто залогинился.
type Identity struct {
	ID        int64
	FirstName string
	Username  string
	Phone     string
}

func (i Identity) String() string {
	if i.Username == "" {
		return fmt.Sprintf("User: %s ID: %d", i.FirstName, i.ID)
	}
	return fmt.Sprintf("User: %s (@%s) ID: %d", i.FirstName, i.Username, i.ID)
}
