package naming

import "testing"

func TestToSnake(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"node", "node"},
		{"FileMetadata", "file_metadata"},
		{"fileMetadata", "file_metadata"},
		{"file-metadata", "file_metadata"},
		{"file_metadata", "file_metadata"},
		{"ActiveRecord", "active_record"},
		{"HTTPServer", "http_server"},
		{"REST", "rest"},
		{"Yaml2", "yaml2"},
		{"*main.Node", "main_node"},
		{"  spaced name ", "spaced_name"},
		{"__double__", "double"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ToSnake(tt.in); got != tt.want {
				t.Errorf("ToSnake(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeAndValid(t *testing.T) {
	if got := Normalize("  CertificateRequest "); got != "certificate_request" {
		t.Fatalf("Normalize = %q", got)
	}
	if !Valid("certificate_request") {
		t.Error("expected canonical name to be valid")
	}
	if Valid("CertificateRequest") {
		t.Error("expected CamelCase name to be reported as non canonical")
	}
	if Valid("") {
		t.Error("expected empty name to be invalid")
	}
}
