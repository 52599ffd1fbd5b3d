package keystore

import (
	"context"

	"techpost/internal/encryption"
	"techpost/internal/engage"
)

// CredentialRows is the part of the local database the sqlite keystore uses.
type CredentialRows interface {
	LoadCredential(ctx context.Context, key string) ([]byte, error)
	SaveCredential(ctx context.Context, key string, value []byte) error
	DeleteCredential(ctx context.Context, key string) error
}

// SQLiteKeystore stores the sealed credential as a row of the local database.
type SQLiteKeystore struct {
	rows   CredentialRows
	sealer encryption.Sealer
}

func NewSQLiteKeystore(rows CredentialRows, sealer encryption.Sealer) *SQLiteKeystore {
	return &SQLiteKeystore{rows: rows, sealer: sealer}
}

func (k *SQLiteKeystore) Load(ctx context.Context) (engage.Credential, bool, error) {
	sealed, err := k.rows.LoadCredential(ctx, Key)
	if err != nil {
		return "", false, err
	}
	if sealed == nil {
		return "", false, nil
	}
	cred, err := open(k.sealer, sealed)
	if err != nil {
		return "", false, err
	}
	return cred, true, nil
}

func (k *SQLiteKeystore) Save(ctx context.Context, cred engage.Credential) error {
	sealed, err := seal(k.sealer, cred)
	if err != nil {
		return err
	}
	return k.rows.SaveCredential(ctx, Key, sealed)
}

func (k *SQLiteKeystore) Delete(ctx context.Context) error {
	return k.rows.DeleteCredential(ctx, Key)
}

var _ engage.CredentialStore = (*SQLiteKeystore)(nil)
