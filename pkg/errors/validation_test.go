package errors

import (
	"strings"
	"testing"
)

func TestValidateTensorName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "conv1_w", false},
		{"scoped", "block1/conv:0", false},
		{"dotted", "fc.weight", false},

		{"empty", "", true},
		{"too long", strings.Repeat("a", 600), true},
		{"null byte", "x\x00y", true},
		{"newline", "x\ny", true},
		{"leading space", " x", true},
		{"trailing tab", "x\t", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTensorName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTensorName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !Is(err, ErrCodeInvalidTensorName) {
				t.Errorf("ValidateTensorName(%q) code = %v", tt.input, GetCode(err))
			}
		})
	}
}

func TestValidateOpType(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"conv", "Conv", false},
		{"underscore", "Int8_Conv", false},
		{"domain", "ai.onnx.Relu", false},

		{"empty", "", true},
		{"leading digit", "1Conv", true},
		{"space", "Conv Relu", true},
		{"slash", "a/b", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOpType(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateOpType(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"relative", "out/model.json", false},
		{"absolute", "/tmp/netcut/partition_0.onnx", false},
		{"parent", "../weights.json", false},

		{"empty", "", true},
		{"null byte", "a\x00b", true},
		{"newline", "a\nb", true},
		{"too long", strings.Repeat("a", 4097), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePath(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePath(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
