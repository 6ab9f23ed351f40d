// Package saml performs structural validation of SAML entity metadata.
package saml

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"
)

// entityDescriptor captures the parts of an EntityDescriptor document
// the validator inspects. Full XSD validation is out of scope; these
// checks catch the submissions that would break downstream consumers.
type entityDescriptor struct {
	XMLName    xml.Name
	EntityID   string   `xml:"entityID,attr"`
	ValidUntil string   `xml:"validUntil,attr"`
	IDP        []role   `xml:"IDPSSODescriptor"`
	SP         []role   `xml:"SPSSODescriptor"`
	AA         []role   `xml:"AttributeAuthorityDescriptor"`
}

type role struct {
	Protocols string `xml:"protocolSupportEnumeration,attr"`
}

// Validate checks metadata for entityName and returns every problem
// found as a human-readable message. An empty slice means the document
// is acceptable.
func Validate(entityName, metadata string) []string {
	var errs []string

	var desc entityDescriptor
	if err := xml.Unmarshal([]byte(metadata), &desc); err != nil {
		return []string{fmt.Sprintf("metadata is not well-formed XML: %v", err)}
	}

	if desc.XMLName.Local != "EntityDescriptor" {
		errs = append(errs, fmt.Sprintf("root element must be EntityDescriptor, got %s", desc.XMLName.Local))
	}
	if strings.TrimSpace(desc.EntityID) == "" {
		errs = append(errs, "EntityDescriptor is missing the entityID attribute")
	}
	if len(desc.IDP)+len(desc.SP)+len(desc.AA) == 0 {
		errs = append(errs, "metadata must declare at least one role descriptor "+
			"(IDPSSODescriptor, SPSSODescriptor or AttributeAuthorityDescriptor)")
	}
	if desc.ValidUntil != "" {
		until, err := time.Parse(time.RFC3339, desc.ValidUntil)
		if err != nil {
			errs = append(errs, fmt.Sprintf("validUntil is not a valid timestamp: %s", desc.ValidUntil))
		} else if until.Before(time.Now()) {
			errs = append(errs, fmt.Sprintf("metadata expired at %s", until.Format(time.RFC3339)))
		}
	}
	return errs
}
