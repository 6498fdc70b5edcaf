package mtproto

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestNormalizeSessionBytesGotdPassthrough(t *testing.T) {
	raw := []byte(`{"Version":1,"Data":{"DC":2}}`)
	out, converted, err := NormalizeSessionBytes(raw)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if converted {
		t.Error("gotd JSON не должен требовать конвертации")
	}
	if !bytes.Equal(out, raw) {
		t.Errorf("gotd JSON должен проходить без изменений, получили %s", out)
	}
}

func TestNormalizeSessionBytesTelethonSessionJSON(t *testing.T) {
	authKey := strings.Repeat("ab", 256)
	raw := []byte(`[{"dc_id":2,"server_address":"149.154.167.50","port":443,"auth_key":"` + authKey + `"}]`)

	out, converted, err := NormalizeSessionBytes(raw)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if !converted {
		t.Error("telethon JSON должен помечаться как сконвертированный")
	}

	var payload struct {
		Version int `json:"Version"`
		Data    struct {
			DC   int    `json:"DC"`
			Addr string `json:"Addr"`
		} `json:"Data"`
	}
	if err := json.Unmarshal(out, &payload); err != nil {
		t.Fatalf("результат не является валидным JSON: %v", err)
	}
	if payload.Version != 1 {
		t.Errorf("ожидали Version=1, получили %d", payload.Version)
	}
	if payload.Data.DC != 2 {
		t.Errorf("ожидали DC=2, получили %d", payload.Data.DC)
	}
	if payload.Data.Addr != "149.154.167.50:443" {
		t.Errorf("неверный адрес DC: %s", payload.Data.Addr)
	}
}

func TestNormalizeSessionBytesRejectsShortAuthKey(t *testing.T) {
	raw := []byte(`[{"dc_id":2,"server_address":"149.154.167.50","port":443,"auth_key":"abcd"}]`)
	if _, _, err := NormalizeSessionBytes(raw); err == nil {
		t.Error("короткий auth_key должен отклоняться")
	}
}

func TestNormalizeSessionBytesEmpty(t *testing.T) {
	if _, _, err := NormalizeSessionBytes([]byte("  \n")); err == nil {
		t.Error("пустая сессия должна возвращать ошибку")
	}
}

func TestNormalizeSessionBytesUnsupported(t *testing.T) {
	_, _, err := NormalizeSessionBytes([]byte("definitely-not-a-session"))
	if !errors.Is(err, ErrUnsupportedSessionFormat) {
		t.Errorf("ожидали ErrUnsupportedSessionFormat, получили %v", err)
	}
}
