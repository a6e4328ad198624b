package store

import (
	"database/sql"
	"fmt"
	"time"
)

func blobTable(kind string) (string, error) {
	switch kind {
	case BlobAvatar:
		return "avatars", nil
	case BlobPhoto:
		return "photos", nil
	case BlobSticker:
		return "stickers", nil
	}
	return "", fmt.Errorf("unknown blob kind %q", kind)
}

// UpsertBlob stores a binary keyed by remote file id. Inline bytes and
// an external storage path are mutually exclusive: setting one clears
// the other.
func (db *DB) UpsertBlob(kind string, b *Blob) error {
	table, err := blobTable(kind)
	if err != nil {
		return err
	}
	bytes := b.Bytes
	path := b.StoragePath
	if len(bytes) > 0 {
		path = ""
	} else if path != "" {
		bytes = nil
	}
	_, err = db.Exec(`
		INSERT INTO `+table+` (file_id, mime, bytes, storage_path, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(file_id) DO UPDATE SET
			mime = excluded.mime,
			bytes = excluded.bytes,
			storage_path = excluded.storage_path,
			updated_at = excluded.updated_at`,
		b.FileID, b.Mime, bytes, path, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert %s blob: %w", kind, err)
	}
	return nil
}

// GetBlob returns a stored binary by file id, or nil when absent.
func (db *DB) GetBlob(kind, fileID string) (*Blob, error) {
	table, err := blobTable(kind)
	if err != nil {
		return nil, err
	}
	var b Blob
	err = db.QueryRow(`SELECT file_id, mime, bytes, storage_path FROM `+table+` WHERE file_id = ?`, fileID).
		Scan(&b.FileID, &b.Mime, &b.Bytes, &b.StoragePath)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}
