package domain

// Expectation tells how the next free-text message of a user is interpreted.
type Expectation int

const (
	ExpectNone Expectation = iota
	ExpectKey
	ExpectRedeemDetails
)

// Persisted tags. They match the values older deployments wrote to the states table.
const (
	tagKey           = "enter_key"
	tagRedeemDetails = "redeem_details"
)

// Tag returns the storage representation; ExpectNone has no tag.
func (e Expectation) Tag() string {
	switch e {
	case ExpectKey:
		return tagKey
	case ExpectRedeemDetails:
		return tagRedeemDetails
	default:
		return ""
	}
}

func (e Expectation) String() string {
	if e == ExpectNone {
		return "none"
	}
	return e.Tag()
}

// ParseExpectation maps a stored tag back to an Expectation.
// Unknown or empty tags read as ExpectNone.
func ParseExpectation(tag string) Expectation {
	switch tag {
	case tagKey:
		return ExpectKey
	case tagRedeemDetails:
		return ExpectRedeemDetails
	default:
		return ExpectNone
	}
}
