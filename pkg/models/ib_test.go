package models

import (
	"encoding/json"
	"testing"
)

func TestMT5AccountLoginForms(t *testing.T) {
	data := []byte(`[{"login":"1001","group":"real"},{"login":1002},{"name":"no login"}]`)

	var accounts []MT5Account
	if err := json.Unmarshal(data, &accounts); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(accounts) != 3 {
		t.Fatalf("got %d accounts, want 3", len(accounts))
	}
	if accounts[0].Login != 1001 || accounts[0].Group != "real" {
		t.Errorf("accounts[0] = %+v", accounts[0])
	}
	if accounts[1].Login != 1002 {
		t.Errorf("accounts[1] = %+v", accounts[1])
	}
	if accounts[2].Login != 0 || accounts[2].Name != "no login" {
		t.Errorf("accounts[2] = %+v", accounts[2])
	}

	var bad MT5Account
	if err := json.Unmarshal([]byte(`{"login":"abc"}`), &bad); err == nil {
		t.Error("non-numeric login decoded without error")
	}
}
