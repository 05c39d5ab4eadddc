package tg

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// SessionPrefix помечает формат строки сессии.
const SessionPrefix = "tdlib:"

const binlogName = "td.binlog"

// exportSession упаковывает binlog авторизованного клиента в одну строку:
// "tdlib:" + base64url(zstd(td.binlog)).
func exportSession(dbDir string) (string, error) {
	raw, err := os.ReadFile(filepath.Join(dbDir, binlogName))
	if err != nil {
		return "", fmt.Errorf("read binlog: %w", err)
	}
	if len(raw) == 0 {
		return "", errors.New("binlog is empty")
	}
	return encodeSession(raw)
}

func encodeSession(raw []byte) (string, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return "", fmt.Errorf("zstd writer: %w", err)
	}
	defer enc.Close()

	packed := enc.EncodeAll(raw, nil)
	return SessionPrefix + base64.RawURLEncoding.EncodeToString(packed), nil
}
