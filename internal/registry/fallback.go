package registry

import "strings"

// Static rows served when the registry is unreachable in mock mode.
var staticPatients = []PatientSummary{
	{
		ID:               "pt-001",
		FullName:         "Ivanov Ivan Ivanovich",
		LastStudyType:    "Express ECG",
		LastStudyDate:    "2024-05-12T08:30:00.000Z",
		MonitoringStatus: MonitoringStable,
	},
	{
		ID:               "pt-002",
		FullName:         "Petrova Anastasia Sergeevna",
		LastStudyType:    "Holter monitoring",
		LastStudyDate:    "2024-05-08T14:15:00.000Z",
		MonitoringStatus: MonitoringWarning,
	},
	{
		ID:               "pt-003",
		FullName:         "Smirnov Mikhail Andreevich",
		LastStudyType:    "Bicycle ergometry",
		LastStudyDate:    "2024-04-30T10:45:00.000Z",
		MonitoringStatus: MonitoringCritical,
	},
}

var staticBirthDates = []string{"1988-09-14", "1994-11-03", "1979-02-21"}

var staticStudies = []StudySummary{
	{
		ID:              "st-1001",
		PatientID:       "pt-001",
		PatientName:     "Ivanov Ivan Ivanovich",
		Modality:        "Holter monitoring",
		Status:          "ready",
		PerformedAt:     "2024-05-11T16:20:00.000Z",
		FindingsSummary: "Sinus rhythm, rare isolated extrasystoles",
	},
	{
		ID:              "st-1002",
		PatientID:       "pt-002",
		PatientName:     "Petrova Anastasia Sergeevna",
		Modality:        "Express ECG",
		Status:          "processing",
		PerformedAt:     "2024-05-10T09:05:00.000Z",
		FindingsSummary: "Suspected repolarization abnormality, physician review required",
	},
	{
		ID:              "st-1003",
		PatientID:       "pt-003",
		PatientName:     "Smirnov Mikhail Andreevich",
		Modality:        "24h blood pressure monitoring",
		Status:          "scheduled",
		PerformedAt:     "2024-05-14T12:00:00.000Z",
		FindingsSummary: "Scheduled to clarify blood pressure dynamics",
	},
}

func fallbackPatients() []PatientSummary {
	return append([]PatientSummary(nil), staticPatients...)
}

func fallbackStudies() []StudySummary {
	return append([]StudySummary(nil), staticStudies...)
}

func fallbackSearchResults() []PatientSearchResult {
	out := make([]PatientSearchResult, 0, len(staticPatients))
	for i, patient := range staticPatients {
		out = append(out, PatientSearchResult{
			PatientSummary: patient,
			BirthDate:      staticBirthDates[i],
			MedicalRecord:  "MR-" + strings.ToUpper(patient.ID),
		})
	}
	return out
}

// filterSearchResults keeps rows whose name contains query, case-insensitively.
func filterSearchResults(rows []PatientSearchResult, query string) []PatientSearchResult {
	needle := strings.ToLower(strings.TrimSpace(query))
	out := make([]PatientSearchResult, 0, len(rows))
	for _, row := range rows {
		if strings.Contains(strings.ToLower(row.FullName), needle) {
			out = append(out, row)
		}
	}
	return out
}
