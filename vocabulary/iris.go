// Package vocabulary provides the reserved identifier range, the
// well-known system IRIs, and the schema cache derived from
// vocabulary-range statements.
package vocabulary

import "github.com/c360/semledger/flake"

// Base IRI constants for the semledger vocabulary
const (
	SemLedgerBase   = "https://semledger.c360.io"
	LedgerNamespace = SemLedgerBase + "/ledger#"

	RDFNamespace  = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	RDFSNamespace = "http://www.w3.org/2000/01/rdf-schema#"
	OWLNamespace  = "http://www.w3.org/2002/07/owl#"
	XSDNamespace  = "http://www.w3.org/2001/XMLSchema#"
	SHNamespace   = "http://www.w3.org/ns/shacl#"
)

// MaxVocabID is the reserved identifier range boundary: any subject
// identifier <= MaxVocabID is a vocabulary/schema subject (predicate,
// class, shape machinery); anything above is ordinary data.
const MaxVocabID flake.ID = 1000

// IsVocabID reports whether an identifier falls in the reserved
// vocabulary range.
func IsVocabID(id flake.ID) bool { return id <= MaxVocabID }

// System identifiers. These are pre-assigned at ledger genesis and
// never allocated; user predicates start above MaxSystemID.
const (
	// IDIRI is the identifier-binding predicate: (sid, IDIRI, "iri")
	// records the IRI a subject or predicate identifier stands for.
	IDIRI flake.ID = 1

	IDRdfType               flake.ID = 2
	IDRdfsClass             flake.ID = 3
	IDRdfProperty           flake.ID = 4
	IDRdfsSubClassOf        flake.ID = 5
	IDOwlEquivalentProperty flake.ID = 6

	// SHACL shape machinery
	IDShNodeShape           flake.ID = 20
	IDShTargetClass         flake.ID = 21
	IDShTargetNode          flake.ID = 22
	IDShProperty            flake.ID = 23
	IDShPath                flake.ID = 24
	IDShMinCount            flake.ID = 25
	IDShMaxCount            flake.ID = 26
	IDShDatatype            flake.ID = 27
	IDShNodeKind            flake.ID = 28
	IDShPattern             flake.ID = 29
	IDShMinLength           flake.ID = 30
	IDShMaxLength           flake.ID = 31
	IDShIn                  flake.ID = 32
	IDShEquals              flake.ID = 33
	IDShDisjoint            flake.ID = 34
	IDShLessThan            flake.ID = 35
	IDShLessThanOrEquals    flake.ID = 36
	IDShClosed              flake.ID = 37
	IDShIgnoredProperties   flake.ID = 38

	// SHACL node-kind values (reference targets)
	IDShIRI          flake.ID = 45
	IDShBlankNode    flake.ID = 46
	IDShLiteral      flake.ID = 47
	IDShBlankOrIRI   flake.ID = 48
	IDShBlankOrLit   flake.ID = 49
	IDShIRIOrLiteral flake.ID = 50

	// Access policy machinery
	IDPolicyClass    flake.ID = 60
	IDPolicyTarget   flake.ID = 61 // target class of a policy
	IDPolicyNode     flake.ID = 62 // target node of a policy
	IDPolicyProperty flake.ID = 63
	IDPolicyPath     flake.ID = 64
	IDPolicyAllow    flake.ID = 65
	IDPolicyRole     flake.ID = 66
	IDPolicyAction   flake.ID = 67
	IDPolicyEquals   flake.ID = 68
	IDPolicyContains flake.ID = 69
	IDRoleClass      flake.ID = 70
	IDIdentityRole   flake.ID = 71 // links an identity subject to its roles

	// IDAllNodes is the universal "all nodes" policy sentinel.
	IDAllNodes flake.ID = 80
	// IDIdentity is the caller-identity placeholder substituted at
	// policy evaluation time.
	IDIdentity flake.ID = 81

	// XSD datatypes
	DatatypeRef      flake.ID = 90 // object is a subject reference
	DatatypeString   flake.ID = 91
	DatatypeInteger  flake.ID = 92
	DatatypeDouble   flake.ID = 93
	DatatypeBoolean  flake.ID = 94
	DatatypeDateTime flake.ID = 95
	DatatypeAnyURI   flake.ID = 96

	// MaxSystemID is the top of the pre-assigned block; allocation of
	// user predicates starts at MaxSystemID + 1.
	MaxSystemID flake.ID = 100
)

// systemIRIs maps every pre-assigned identifier to its IRI.
var systemIRIs = map[flake.ID]string{
	IDIRI:                   "@id",
	IDRdfType:               RDFNamespace + "type",
	IDRdfsClass:             RDFSNamespace + "Class",
	IDRdfProperty:           RDFNamespace + "Property",
	IDRdfsSubClassOf:        RDFSNamespace + "subClassOf",
	IDOwlEquivalentProperty: OWLNamespace + "equivalentProperty",

	IDShNodeShape:         SHNamespace + "NodeShape",
	IDShTargetClass:       SHNamespace + "targetClass",
	IDShTargetNode:        SHNamespace + "targetNode",
	IDShProperty:          SHNamespace + "property",
	IDShPath:              SHNamespace + "path",
	IDShMinCount:          SHNamespace + "minCount",
	IDShMaxCount:          SHNamespace + "maxCount",
	IDShDatatype:          SHNamespace + "datatype",
	IDShNodeKind:          SHNamespace + "nodeKind",
	IDShPattern:           SHNamespace + "pattern",
	IDShMinLength:         SHNamespace + "minLength",
	IDShMaxLength:         SHNamespace + "maxLength",
	IDShIn:                SHNamespace + "in",
	IDShEquals:            SHNamespace + "equals",
	IDShDisjoint:          SHNamespace + "disjoint",
	IDShLessThan:          SHNamespace + "lessThan",
	IDShLessThanOrEquals:  SHNamespace + "lessThanOrEquals",
	IDShClosed:            SHNamespace + "closed",
	IDShIgnoredProperties: SHNamespace + "ignoredProperties",

	IDShIRI:          SHNamespace + "IRI",
	IDShBlankNode:    SHNamespace + "BlankNode",
	IDShLiteral:      SHNamespace + "Literal",
	IDShBlankOrIRI:   SHNamespace + "BlankNodeOrIRI",
	IDShBlankOrLit:   SHNamespace + "BlankNodeOrLiteral",
	IDShIRIOrLiteral: SHNamespace + "IRIOrLiteral",

	IDPolicyClass:    LedgerNamespace + "Policy",
	IDPolicyTarget:   LedgerNamespace + "targetClass",
	IDPolicyNode:     LedgerNamespace + "targetNode",
	IDPolicyProperty: LedgerNamespace + "property",
	IDPolicyPath:     LedgerNamespace + "path",
	IDPolicyAllow:    LedgerNamespace + "allow",
	IDPolicyRole:     LedgerNamespace + "role",
	IDPolicyAction:   LedgerNamespace + "action",
	IDPolicyEquals:   LedgerNamespace + "equals",
	IDPolicyContains: LedgerNamespace + "contains",
	IDRoleClass:      LedgerNamespace + "Role",
	IDIdentityRole:   LedgerNamespace + "hasRole",

	IDAllNodes: LedgerNamespace + "allNodes",
	IDIdentity: LedgerNamespace + "$identity",

	DatatypeRef:      LedgerNamespace + "ref",
	DatatypeString:   XSDNamespace + "string",
	DatatypeInteger:  XSDNamespace + "integer",
	DatatypeDouble:   XSDNamespace + "double",
	DatatypeBoolean:  XSDNamespace + "boolean",
	DatatypeDateTime: XSDNamespace + "dateTime",
	DatatypeAnyURI:   XSDNamespace + "anyURI",
}

// systemIDs is the inverse of systemIRIs.
var systemIDs = func() map[string]flake.ID {
	m := make(map[string]flake.ID, len(systemIRIs))
	for id, iri := range systemIRIs {
		m[iri] = id
	}
	return m
}()

// SystemID resolves a well-known IRI to its pre-assigned identifier.
func SystemID(iri string) (flake.ID, bool) {
	id, ok := systemIDs[iri]
	return id, ok
}

// SystemIRI resolves a pre-assigned identifier back to its IRI.
func SystemIRI(id flake.ID) (string, bool) {
	iri, ok := systemIRIs[id]
	return iri, ok
}

// DatatypeIRI resolves a datatype IRI to its identifier. Unknown
// datatype IRIs default to xsd:string per JSON-LD literal handling.
func DatatypeIRI(iri string) flake.ID {
	if iri == "" {
		return DatatypeString
	}
	if id, ok := systemIDs[iri]; ok && id >= DatatypeRef && id <= DatatypeAnyURI {
		return id
	}
	return DatatypeString
}

// DefaultContext returns the default JSON-LD context shipped with a
// fresh ledger. Storage-provided contexts merge over this.
func DefaultContext() map[string]any {
	return map[string]any{
		"rdf":  RDFNamespace,
		"rdfs": RDFSNamespace,
		"owl":  OWLNamespace,
		"xsd":  XSDNamespace,
		"sh":   SHNamespace,
		"sl":   LedgerNamespace,
	}
}
