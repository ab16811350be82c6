package model

const DefaultCanonicalBranch Branch = "main"

type Dependencies struct {
	Dir      string
	Manifest string
	Prefix   string
	Install  Command
}

type Build struct {
	WorkDir           string
	Command           Command
	OutputDir         string
	FullHistory       bool
	VerifyDeterminism bool
}

type Publish struct {
	Branch      Branch
	Remote      string
	TokenEnv    string
	AuthorName  string
	AuthorEmail string
	Message     string
	NoJekyll    bool
	CNAME       string
}

type Pipeline struct {
	RepoDir         string
	CanonicalBranch Branch
	Trigger         Trigger
	Toolchain       Toolchain
	Dependencies    Dependencies
	Build           Build
	Publish         Publish
	HistoryPath     string
	MetricsFile     string
}
