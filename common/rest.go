package common

// SoftwareName is the name of this software
const SoftwareName = "rps-arena"

// SoftwareVersion is the version of this software
const SoftwareVersion = "v1.0.0"

// APIVersion is the version of the REST API served by the server package
const APIVersion uint = 1

// InfoResponse is the JSON response to the /info REST method
type InfoResponse struct {
	Software string `json:"software"`
	Version  string `json:"version"`
	API      uint   `json:"apiVersion"`
}

// StatsResponse is the JSON response to the /stats REST method
type StatsResponse struct {
	Online   int `json:"online"`
	Waiting  int `json:"waiting"`
	Sessions int `json:"sessions"`
}

// TallyResponse is the JSON response to the /results/{user} REST method
type TallyResponse struct {
	User   string `json:"user"`
	Wins   int64  `json:"wins"`
	Losses int64  `json:"losses"`
	Draws  int64  `json:"draws"`
}
