package protocol

import (
	"encoding/json"
	"testing"
)

func TestParseRequest_Register(t *testing.T) {
	data := []byte(`{"q":"register_worker","blast_port":9000}`)
	req, err := ParseRequest(data)
	if err != nil {
		t.Fatalf("ParseRequest failed: %v", err)
	}
	r, ok := req.(*RegisterRequest)
	if !ok {
		t.Fatalf("expected *RegisterRequest, got %T", req)
	}
	if r.BlastPort != 9000 {
		t.Errorf("expected blast_port 9000, got %d", r.BlastPort)
	}
}

func TestParseRequest_GetWork(t *testing.T) {
	data := []byte(`{"q":"get_work","worker_id":"abc123"}`)
	req, err := ParseRequest(data)
	if err != nil {
		t.Fatalf("ParseRequest failed: %v", err)
	}
	r, ok := req.(*GetWorkRequest)
	if !ok {
		t.Fatalf("expected *GetWorkRequest, got %T", req)
	}
	if r.WorkerID != "abc123" {
		t.Errorf("expected worker_id abc123, got %s", r.WorkerID)
	}
}

func TestParseRequest_ReportFlowLegacyBytes(t *testing.T) {
	data := []byte(`{"q":"report_flow","worker_id":"abc","blast_ip":"10.0.0.1","blast_port":9000,"start":1700000000,"duration":5.25,"bytes":4096}`)
	req, err := ParseRequest(data)
	if err != nil {
		t.Fatalf("ParseRequest failed: %v", err)
	}
	r, ok := req.(*ReportFlowRequest)
	if !ok {
		t.Fatalf("expected *ReportFlowRequest, got %T", req)
	}
	if r.BytesLegacy == nil || *r.BytesLegacy != 4096 {
		t.Errorf("expected legacy bytes field 4096, got %+v", r.BytesLegacy)
	}
}

func TestParseRequest_UnknownCommand(t *testing.T) {
	_, err := ParseRequest([]byte(`{"q":"not_a_command"}`))
	if err == nil {
		t.Fatal("expected an error for an unknown command")
	}
	q, ok := IsUnknownCommand(err)
	if !ok {
		t.Fatalf("expected IsUnknownCommand to recognize %v", err)
	}
	if q != "not_a_command" {
		t.Errorf("expected q %q, got %q", "not_a_command", q)
	}
}

func TestIsUnknownCommand_OtherErrorsNotMatched(t *testing.T) {
	_, err := ParseRequest([]byte(`not json`))
	if _, ok := IsUnknownCommand(err); ok {
		t.Errorf("expected a JSON-decode error not to be reported as an unknown command, got %v", err)
	}
}

func TestParseRequest_InvalidJSON(t *testing.T) {
	_, err := ParseRequest([]byte(`not json`))
	if err == nil {
		t.Fatal("expected an error for invalid JSON")
	}
}

func TestResponse_EmptyOmitsFields(t *testing.T) {
	data, err := json.Marshal(Empty())
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	if string(data) != "{}" {
		t.Errorf("expected an empty JSON object, got %s", data)
	}
}

func TestUnknown_UsesMessageNotErrorMsg(t *testing.T) {
	data, err := json.Marshal(Unknown("not_a_command"))
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if decoded["message"] != "Unknown command 'not_a_command'" {
		t.Errorf("expected message field, got %+v", decoded)
	}
	if _, ok := decoded["error_msg"]; ok {
		t.Errorf("expected no error_msg field, got %+v", decoded)
	}
}

func TestResponse_FailureShape(t *testing.T) {
	retryAfter := 5.0
	resp := Failure("no receiver", &retryAfter, true)
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if decoded["success"] != false {
		t.Errorf("expected success=false, got %v", decoded["success"])
	}
	if decoded["retry_after"] != 5.0 {
		t.Errorf("expected retry_after=5, got %v", decoded["retry_after"])
	}
	if decoded["reregister"] != true {
		t.Errorf("expected reregister=true, got %v", decoded["reregister"])
	}
}

func TestResponse_GetWorkSuccessShape(t *testing.T) {
	resp := GetWorkSuccess("10.0.0.2", 9000, "blastid123", DirectionSend, 60)
	data, _ := json.Marshal(resp)

	var decoded map[string]interface{}
	json.Unmarshal(data, &decoded)
	if decoded["blast_ip"] != "10.0.0.2" {
		t.Errorf("expected blast_ip 10.0.0.2, got %v", decoded["blast_ip"])
	}
	if decoded["duration"] != 60.0 {
		t.Errorf("expected duration 60, got %v", decoded["duration"])
	}
}
