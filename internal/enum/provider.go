package enum

type AccountProvider string

const (
	ProviderGoogleWorkspace AccountProvider = "google_workspace"
	ProviderGmail           AccountProvider = "gmail"
)

func (t AccountProvider) String() string {
	return string(t)
}

// IsGoogle reports whether the provider is backed by the Gmail API
func (t AccountProvider) IsGoogle() bool {
	return t == ProviderGoogleWorkspace || t == ProviderGmail
}
