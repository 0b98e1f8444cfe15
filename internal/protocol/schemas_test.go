package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("..", "..", "schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	validate := func(s *jsonschema.Schema, raw string) error {
		t.Helper()
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			t.Fatalf("unmarshal sample: %v", err)
		}
		return s.Validate(v)
	}

	helloSchema := compile("hello.schema.json")
	actSchema := compile("act.schema.json")

	if err := validate(helloSchema, `{
	  "type":"HELLO",
	  "protocol_version":"1.0",
	  "role":"player",
	  "character":"D'Ambrosio",
	  "agent_name":"bot1"
	}`); err != nil {
		t.Fatalf("player hello: %v", err)
	}

	if err := validate(helloSchema, `{
	  "type":"HELLO",
	  "protocol_version":"1.0",
	  "role":"observer"
	}`); err != nil {
		t.Fatalf("observer hello: %v", err)
	}

	if err := validate(helloSchema, `{
	  "type":"HELLO",
	  "protocol_version":"1.0",
	  "role":"spectator"
	}`); err == nil {
		t.Fatal("unknown role should fail validation")
	}

	if err := validate(actSchema, `{
	  "type":"ACT",
	  "protocol_version":"1.0",
	  "req_id":"g1-7",
	  "character":"Quincy",
	  "action":{"kind":"CLAIM_TOKEN","token_id":3}
	}`); err != nil {
		t.Fatalf("claim act: %v", err)
	}

	if err := validate(actSchema, `{
	  "type":"ACT",
	  "protocol_version":"1.0",
	  "req_id":"g1-8",
	  "character":"Quincy",
	  "action":{"kind":"CAST_VOTE","proposal":1}
	}`); err != nil {
		t.Fatalf("vote act: %v", err)
	}

	if err := validate(actSchema, `{
	  "type":"ACT",
	  "protocol_version":"1.0",
	  "req_id":"g1-9",
	  "action":{"kind":"CLAIM_TOKEN","token_id":7}
	}`); err == nil {
		t.Fatal("out of range token should fail validation")
	}
}
