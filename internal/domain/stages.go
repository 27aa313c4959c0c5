package domain

// StageInfo is the clinical guidance attached to one severity grade.
type StageInfo struct {
	Stage          int    `json:"stage"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	Symptoms       string `json:"symptoms"`
	Recommendation string `json:"recommendation"`
	Risk           string `json:"risk"`
	Urgency        string `json:"urgency"`
	FollowUp       string `json:"follow_up"`
	Timeline       string `json:"timeline"`
	Color          string `json:"color"`
}

const Disclaimer = "This AI-powered tool is designed for preliminary screening and " +
	"educational purposes only. It is NOT a substitute for professional medical advice, " +
	"diagnosis, or treatment. Always seek the advice of qualified ophthalmologists or " +
	"healthcare providers, and in case of eye emergencies contact emergency services immediately."

var stageCatalog = [NumStages]StageInfo{
	{
		Stage:          0,
		Name:           "No Diabetic Retinopathy",
		Description:    "No abnormalities detected. Regular annual checkups recommended.",
		Symptoms:       "No visible symptoms",
		Recommendation: "Maintain good blood sugar control and annual eye exams",
		Risk:           "Very Low",
		Urgency:        "Routine",
		FollowUp:       "Annual comprehensive eye exam",
		Timeline:       "6-12 months",
		Color:          "#4CAF50",
	},
	{
		Stage:          1,
		Name:           "Mild Nonproliferative Retinopathy",
		Description:    "Early stage with microaneurysms (small balloon-like swellings in retina's blood vessels).",
		Symptoms:       "Usually no symptoms",
		Recommendation: "Monitor closely, improve blood sugar control",
		Risk:           "Low",
		Urgency:        "Regular Monitoring",
		FollowUp:       "Follow-up in 6-12 months",
		Timeline:       "6-12 months",
		Color:          "#FF9800",
	},
	{
		Stage:          2,
		Name:           "Moderate Nonproliferative Retinopathy",
		Description:    "Blood vessels that nourish retina are swelling and distorting.",
		Symptoms:       "Possible blurred vision",
		Recommendation: "Regular monitoring every 6-12 months",
		Risk:           "Medium",
		Urgency:        "Close Monitoring",
		FollowUp:       "Follow-up in 4-6 months",
		Timeline:       "Within 1 month",
		Color:          "#FFC107",
	},
	{
		Stage:          3,
		Name:           "Severe Nonproliferative Retinopathy",
		Description:    "More blood vessels are blocked, depriving retina of nourishment.",
		Symptoms:       "Significant vision problems",
		Recommendation: "Immediate ophthalmologist consultation",
		Risk:           "High",
		Urgency:        "Urgent",
		FollowUp:       "Consult ophthalmologist within 1 month",
		Timeline:       "Immediate",
		Color:          "#F44336",
	},
	{
		Stage:          4,
		Name:           "Proliferative Retinopathy",
		Description:    "Advanced stage where new fragile blood vessels grow on retina.",
		Symptoms:       "Severe vision loss, floaters",
		Recommendation: "Urgent medical attention required",
		Risk:           "Very High",
		Urgency:        "Emergency",
		FollowUp:       "Emergency referral needed",
		Timeline:       "Immediate",
		Color:          "#9C27B0",
	},
}

// Stages returns the full severity catalog in stage order.
func Stages() []StageInfo {
	out := make([]StageInfo, NumStages)
	copy(out, stageCatalog[:])
	return out
}

// StageByNumber returns the catalog entry for a stage, reporting whether the
// stage exists.
func StageByNumber(stage int) (StageInfo, bool) {
	if stage < 0 || stage >= NumStages {
		return StageInfo{}, false
	}
	return stageCatalog[stage], true
}
