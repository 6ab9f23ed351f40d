package saml

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

const validMetadata = `<EntityDescriptor xmlns="urn:oasis:names:tc:SAML:2.0:metadata"
	entityID="https://idp.example.org/saml">
	<IDPSSODescriptor protocolSupportEnumeration="urn:oasis:names:tc:SAML:2.0:protocol"/>
</EntityDescriptor>`

func TestValidMetadata(t *testing.T) {
	errs := Validate("idp", validMetadata)
	if len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
}

func TestNotXML(t *testing.T) {
	errs := Validate("idp", "this is not xml at all <<<")
	if len(errs) != 1 {
		t.Fatalf("expected a single error, got %v", errs)
	}
	if !strings.Contains(errs[0], "well-formed") {
		t.Errorf("unexpected message: %s", errs[0])
	}
}

func TestWrongRootElement(t *testing.T) {
	errs := Validate("idp", `<EntitiesDescriptor entityID="x"><IDPSSODescriptor/></EntitiesDescriptor>`)
	found := false
	for _, e := range errs {
		if strings.Contains(e, "root element must be EntityDescriptor") {
			found = true
		}
	}
	if !found {
		t.Errorf("missing root element error in %v", errs)
	}
}

func TestMissingEntityID(t *testing.T) {
	errs := Validate("idp", `<EntityDescriptor><SPSSODescriptor/></EntityDescriptor>`)
	found := false
	for _, e := range errs {
		if strings.Contains(e, "entityID") {
			found = true
		}
	}
	if !found {
		t.Errorf("missing entityID error in %v", errs)
	}
}

func TestNoRoleDescriptors(t *testing.T) {
	errs := Validate("idp", `<EntityDescriptor entityID="https://x.example.org"/>`)
	found := false
	for _, e := range errs {
		if strings.Contains(e, "role descriptor") {
			found = true
		}
	}
	if !found {
		t.Errorf("missing role descriptor error in %v", errs)
	}
}

func TestExpiredValidUntil(t *testing.T) {
	past := time.Now().Add(-24 * time.Hour).Format(time.RFC3339)
	doc := fmt.Sprintf(`<EntityDescriptor entityID="https://x.example.org" validUntil=%q>
		<IDPSSODescriptor/>
	</EntityDescriptor>`, past)
	errs := Validate("idp", doc)
	found := false
	for _, e := range errs {
		if strings.Contains(e, "expired") {
			found = true
		}
	}
	if !found {
		t.Errorf("missing expiry error in %v", errs)
	}
}

func TestBadValidUntil(t *testing.T) {
	errs := Validate("idp", `<EntityDescriptor entityID="https://x.example.org" validUntil="tomorrow">
		<IDPSSODescriptor/>
	</EntityDescriptor>`)
	found := false
	for _, e := range errs {
		if strings.Contains(e, "validUntil") {
			found = true
		}
	}
	if !found {
		t.Errorf("missing validUntil error in %v", errs)
	}
}

func TestFutureValidUntilAccepted(t *testing.T) {
	future := time.Now().Add(365 * 24 * time.Hour).Format(time.RFC3339)
	doc := fmt.Sprintf(`<EntityDescriptor entityID="https://x.example.org" validUntil=%q>
		<SPSSODescriptor/>
	</EntityDescriptor>`, future)
	if errs := Validate("idp", doc); len(errs) != 0 {
		t.Errorf("expected no errors, got %v", errs)
	}
}
