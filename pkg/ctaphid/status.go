package ctaphid

// StatusCode is the first byte of a CTAPHID_CBOR response payload: the
// CTAP2 status of the just-completed operation.
type StatusCode byte

const (
	StatusOK                        StatusCode = 0x00
	StatusErrInvalidCommand         StatusCode = 0x01
	StatusErrInvalidParameter       StatusCode = 0x02
	StatusErrInvalidLength          StatusCode = 0x03
	StatusErrInvalidSeq             StatusCode = 0x04
	StatusErrTimeout                StatusCode = 0x05
	StatusErrChannelBusy            StatusCode = 0x06
	StatusErrLockRequired           StatusCode = 0x0A
	StatusErrInvalidChannel         StatusCode = 0x0B
	StatusErrCBORUnexpectedType     StatusCode = 0x11
	StatusErrInvalidCBOR            StatusCode = 0x12
	StatusErrMissingParameter       StatusCode = 0x14
	StatusErrLimitExceeded          StatusCode = 0x15
	StatusErrFPDatabaseFull         StatusCode = 0x17
	StatusErrLargeBlobStorageFull   StatusCode = 0x18
	StatusErrCredentialExcluded     StatusCode = 0x19
	StatusErrProcessing             StatusCode = 0x21
	StatusErrInvalidCredential      StatusCode = 0x22
	StatusErrUserActionPending      StatusCode = 0x23
	StatusErrOperationPending       StatusCode = 0x24
	StatusErrNoOperations           StatusCode = 0x25
	StatusErrUnsupportedAlgorithm   StatusCode = 0x26
	StatusErrOperationDenied        StatusCode = 0x27
	StatusErrKeyStoreFull           StatusCode = 0x28
	StatusErrUnsupportedOption      StatusCode = 0x2B
	StatusErrInvalidOption          StatusCode = 0x2C
	StatusErrKeepaliveCancel        StatusCode = 0x2D
	StatusErrNoCredentials          StatusCode = 0x2E
	StatusErrUserActionTimeout      StatusCode = 0x2F
	StatusErrNotAllowed             StatusCode = 0x30
	StatusErrPinInvalid             StatusCode = 0x31
	StatusErrPinBlocked             StatusCode = 0x32
	StatusErrPinAuthInvalid         StatusCode = 0x33
	StatusErrPinAuthBlocked         StatusCode = 0x34
	StatusErrPinNotSet              StatusCode = 0x35
	StatusErrPUATRequired           StatusCode = 0x36
	StatusErrPinPolicyViolation     StatusCode = 0x37
	StatusReservedForFutureUse      StatusCode = 0x38
	StatusErrRequestTooLarge        StatusCode = 0x39
	StatusErrActionTimeout          StatusCode = 0x3A
	StatusErrUpRequired             StatusCode = 0x3B
	StatusErrUvBlocked              StatusCode = 0x3C
	StatusErrIntegrityFailure       StatusCode = 0x3D
	StatusErrInvalidSubcommand      StatusCode = 0x3E
	StatusErrUvInvalid              StatusCode = 0x3F
	StatusErrUnauthorizedPermission StatusCode = 0x40
	StatusOther                     StatusCode = 0x7F

	// statusDeprecatedCBORParsing and statusDeprecatedInvalidCBORType are
	// removed/deprecated codes the device should no longer emit.
	statusDeprecatedCBORParsing     StatusCode = 0x10
	statusDeprecatedInvalidCBORType StatusCode = 0x13

	statusExtensionFirst StatusCode = 0xE0
	statusExtensionLast  StatusCode = 0xEF
	statusVendorFirst    StatusCode = 0xF0
	statusVendorLast     StatusCode = 0xF8
)

func (s StatusCode) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

var statusNames = map[StatusCode]string{
	StatusOK:                        "ok",
	StatusErrInvalidCommand:         "invalid command",
	StatusErrInvalidParameter:       "invalid parameter",
	StatusErrInvalidLength:          "invalid length",
	StatusErrInvalidSeq:             "invalid sequence",
	StatusErrTimeout:                "timeout",
	StatusErrChannelBusy:            "channel busy",
	StatusErrLockRequired:           "lock required",
	StatusErrInvalidChannel:         "invalid channel",
	StatusErrCBORUnexpectedType:     "CBOR unexpected type",
	StatusErrInvalidCBOR:            "invalid CBOR",
	StatusErrMissingParameter:       "missing parameter",
	StatusErrLimitExceeded:          "limit exceeded",
	StatusErrFPDatabaseFull:         "fingerprint database full",
	StatusErrLargeBlobStorageFull:   "large blob storage full",
	StatusErrCredentialExcluded:     "credential excluded",
	StatusErrProcessing:             "processing",
	StatusErrInvalidCredential:      "invalid credential",
	StatusErrUserActionPending:      "user action pending",
	StatusErrOperationPending:       "operation pending",
	StatusErrNoOperations:           "no operations",
	StatusErrUnsupportedAlgorithm:   "unsupported algorithm",
	StatusErrOperationDenied:        "operation denied",
	StatusErrKeyStoreFull:           "key store full",
	StatusErrUnsupportedOption:      "unsupported option",
	StatusErrInvalidOption:          "invalid option",
	StatusErrKeepaliveCancel:        "keepalive cancel",
	StatusErrNoCredentials:          "no credentials",
	StatusErrUserActionTimeout:      "user action timeout",
	StatusErrNotAllowed:             "not allowed",
	StatusErrPinInvalid:             "pin invalid",
	StatusErrPinBlocked:             "pin blocked",
	StatusErrPinAuthInvalid:         "pin auth invalid",
	StatusErrPinAuthBlocked:         "pin auth blocked",
	StatusErrPinNotSet:              "pin not set",
	StatusErrPUATRequired:           "pinUvAuthToken required",
	StatusErrPinPolicyViolation:     "pin policy violation",
	StatusReservedForFutureUse:      "reserved for future use",
	StatusErrRequestTooLarge:        "request too large",
	StatusErrActionTimeout:          "action timeout",
	StatusErrUpRequired:             "user presence required",
	StatusErrUvBlocked:              "user verification blocked",
	StatusErrIntegrityFailure:       "integrity failure",
	StatusErrInvalidSubcommand:      "invalid subcommand",
	StatusErrUvInvalid:              "user verification invalid",
	StatusErrUnauthorizedPermission: "unauthorized permission",
	StatusOther:                     "other",
}

// StatusClass is the outcome of classifying a raw status byte against the
// documented ranges.
type StatusClass int

const (
	// ClassKnown is a status byte in the fixed enumerated set.
	ClassKnown StatusClass = iota
	// ClassDeprecatedRemoved is 0x10 or 0x13: removed codes the device
	// should no longer emit.
	ClassDeprecatedRemoved
	// ClassExtensionSpecific is 0xE0..0xEF.
	ClassExtensionSpecific
	// ClassVendorSpecific is 0xF0..0xF8.
	ClassVendorSpecific
	// ClassUnspecified is every other byte: a programming error in the
	// device.
	ClassUnspecified
)

func (c StatusClass) String() string {
	switch c {
	case ClassKnown:
		return "known"
	case ClassDeprecatedRemoved:
		return "deprecated/removed"
	case ClassExtensionSpecific:
		return "extension-specific"
	case ClassVendorSpecific:
		return "vendor-specific"
	default:
		return "unspecified"
	}
}

// Classify maps a raw CTAP2 status byte onto its StatusCode and StatusClass.
// The three middle classes are meant to be logged as diagnostic failures
// and collapsed to ErrOther by callers; ClassUnspecified is a fatal
// invariant violation.
func Classify(b byte) (StatusCode, StatusClass) {
	code := StatusCode(b)

	switch code {
	case statusDeprecatedCBORParsing, statusDeprecatedInvalidCBORType:
		return code, ClassDeprecatedRemoved
	}

	if code >= statusExtensionFirst && code <= statusExtensionLast {
		return code, ClassExtensionSpecific
	}
	if code >= statusVendorFirst && code <= statusVendorLast {
		return code, ClassVendorSpecific
	}
	if _, ok := statusNames[code]; ok {
		return code, ClassKnown
	}

	return code, ClassUnspecified
}
