package ws

import (
	"errors"
	"net/http/httptest"
	"testing"
)

func TestStaticVerifier(t *testing.T) {
	t.Parallel()

	v := StaticVerifier{Secret: "s3cret"}

	tests := []struct {
		name    string
		url     string
		wantErr error
		user    string
		org     string
	}{
		{"valid credential", "/ws/voice-assistant?token=s3cret&user_id=marie&org_id=ferme-12", nil, "marie", "ferme-12"},
		{"defaults anonymous user", "/ws/voice-assistant?token=s3cret&org_id=ferme-12", nil, "anonymous", "ferme-12"},
		{"missing token", "/ws/voice-assistant?org_id=ferme-12", ErrMissingCredential, "", ""},
		{"wrong secret", "/ws/voice-assistant?token=nope&org_id=ferme-12", ErrBadCredential, "", ""},
		{"missing organization", "/ws/voice-assistant?token=s3cret&user_id=marie", ErrNoOrganization, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", tt.url, nil)
			p, err := v.Verify(r)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if p.UserID != tt.user || p.OrgID != tt.org {
				t.Errorf("principal = %+v, want user %q org %q", p, tt.user, tt.org)
			}
		})
	}
}
