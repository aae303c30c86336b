package dto

type ListTherapistsRequest struct {
	State    string `query:"state"`
	Modality string `query:"modality"`
}

type TherapistResponse struct {
	Id               string   `json:"id"`
	FullName         string   `json:"full_name"`
	Credentials      string   `json:"credentials"`
	Specialties      []string `json:"specialties"`
	State            string   `json:"state"`
	Modality         string   `json:"modality"`
	AcceptingClients bool     `json:"accepting_clients"`
	Bio              string   `json:"bio"`
}

type ListTherapistsResponse struct {
	Therapists []TherapistResponse `json:"therapists"`
	Degraded   bool                `json:"degraded"`
}
