package validation

import "testing"

func TestStruct(t *testing.T) {
	type req struct {
		Email  string  `validate:"required,email"`
		Rating int     `validate:"min=1,max=5"`
		Amount float64 `validate:"gt=0"`
	}

	tests := []struct {
		name    string
		payload req
		wantErr bool
	}{
		{
			name:    "valid",
			payload: req{Email: "user@example.com", Rating: 5, Amount: 10},
		},
		{
			name:    "bad email",
			payload: req{Email: "not-an-email", Rating: 3, Amount: 10},
			wantErr: true,
		},
		{
			name:    "rating out of range",
			payload: req{Email: "user@example.com", Rating: 6, Amount: 10},
			wantErr: true,
		},
		{
			name:    "non-positive amount",
			payload: req{Email: "user@example.com", Rating: 3, Amount: 0},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Struct(tt.payload)
			if tt.wantErr && err == nil {
				t.Fatalf("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
