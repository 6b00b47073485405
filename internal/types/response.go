package types

// ResponseMeta carries non-blocking metadata returned next to the data of a
// successful response.
type ResponseMeta struct {
	Warnings []string `json:"warnings,omitempty"`
	Count    int      `json:"count"`
}
