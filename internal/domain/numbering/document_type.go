package numbering

// DocumentType identifies one independently numbered document series
type DocumentType string

// Supported document types
const (
	DocumentTypeInvoice           DocumentType = "INVOICE"
	DocumentTypeQuote             DocumentType = "QUOTE"
	DocumentTypeOrderConfirmation DocumentType = "ORDER_CONFIRMATION"
	DocumentTypeDeliveryNote      DocumentType = "DELIVERY_NOTE"
	DocumentTypeCreditNote        DocumentType = "CREDIT_NOTE"
	DocumentTypeCustomer          DocumentType = "CUSTOMER"
	DocumentTypeSupplier          DocumentType = "SUPPLIER"
	DocumentTypePartner           DocumentType = "PARTNER"
	DocumentTypeProspect          DocumentType = "PROSPECT"
)

// SequenceDefaults describes the factory configuration for one document type
type SequenceDefaults struct {
	Format string
	Start  int64
	// ScanDocuments marks types whose numbers can originate from document
	// creation paths that bypass the allocator; their counters are
	// reconciled against the documents table before allocation.
	ScanDocuments bool
}

// defaultCatalog is the factory sequence configuration per document type.
// Adding a document type is a data change here, not a new code branch.
var defaultCatalog = map[DocumentType]SequenceDefaults{
	DocumentTypeInvoice:           {Format: "RE-{number}", Start: 1001, ScanDocuments: true},
	DocumentTypeQuote:             {Format: "AN-{number}", Start: 1001, ScanDocuments: true},
	DocumentTypeOrderConfirmation: {Format: "AB-{number}", Start: 1001, ScanDocuments: true},
	DocumentTypeDeliveryNote:      {Format: "LS-{number}", Start: 1001, ScanDocuments: true},
	DocumentTypeCreditNote:        {Format: "GS-{number}", Start: 1001, ScanDocuments: true},
	DocumentTypeCustomer:          {Format: "KD-%NUMBER", Start: 1},
	DocumentTypeSupplier:          {Format: "LF-%NUMBER", Start: 1},
	DocumentTypePartner:           {Format: "PN-%NUMBER", Start: 1},
	DocumentTypeProspect:          {Format: "IN-%NUMBER", Start: 1},
}

// documentTypeOrder fixes the iteration order for bootstrap and listings
var documentTypeOrder = []DocumentType{
	DocumentTypeInvoice,
	DocumentTypeQuote,
	DocumentTypeOrderConfirmation,
	DocumentTypeDeliveryNote,
	DocumentTypeCreditNote,
	DocumentTypeCustomer,
	DocumentTypeSupplier,
	DocumentTypePartner,
	DocumentTypeProspect,
}

// AllDocumentTypes returns every known document type in stable order
func AllDocumentTypes() []DocumentType {
	types := make([]DocumentType, len(documentTypeOrder))
	copy(types, documentTypeOrder)
	return types
}

// Defaults returns the factory sequence configuration for the type
func (t DocumentType) Defaults() (SequenceDefaults, bool) {
	d, ok := defaultCatalog[t]
	return d, ok
}

// IsValid checks if the document type is a known catalog entry
func (t DocumentType) IsValid() bool {
	_, ok := defaultCatalog[t]
	return ok
}

// NeedsReconciliation returns true if documents of this type can carry
// numbers that were never issued by the allocator
func (t DocumentType) NeedsReconciliation() bool {
	d, ok := defaultCatalog[t]
	return ok && d.ScanDocuments
}
