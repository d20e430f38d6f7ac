package dto

// ReservedSlotRequest names an already-placed (day, time, room?, faculty?)
// tuple reserved against a run's candidates, used both for a single generate
// call and chained across a cycle's per-term runs.
type ReservedSlotRequest struct {
	Day       string `json:"day" validate:"required"`
	StartTime string `json:"startTime" validate:"required"`
	EndTime   string `json:"endTime" validate:"required"`
	RoomID    string `json:"roomId,omitempty"`
	FacultyID string `json:"facultyId,omitempty"`
}

// ObjectiveWeightsRequest mirrors scheduler.ObjectiveWeights for the wire layer.
type ObjectiveWeightsRequest struct {
	RoomConflict             float64 `json:"roomConflict" validate:"omitempty,min=0"`
	FacultyConflict          float64 `json:"facultyConflict" validate:"omitempty,min=0"`
	SectionConflict          float64 `json:"sectionConflict" validate:"omitempty,min=0"`
	RoomCapacity             float64 `json:"roomCapacity" validate:"omitempty,min=0"`
	RoomType                 float64 `json:"roomType" validate:"omitempty,min=0"`
	FacultyAvailability      float64 `json:"facultyAvailability" validate:"omitempty,min=0"`
	LockedSlot               float64 `json:"lockedSlot" validate:"omitempty,min=0"`
	SemesterLimit            float64 `json:"semesterLimit" validate:"omitempty,min=0"`
	WorkloadOverflow         float64 `json:"workloadOverflow" validate:"omitempty,min=0"`
	WorkloadUnderflow        float64 `json:"workloadUnderflow" validate:"omitempty,min=0"`
	FacultySubjectPreference float64 `json:"facultySubjectPreference" validate:"omitempty,min=0"`
	SpreadBalance            float64 `json:"spreadBalance" validate:"omitempty,min=0"`
}

// GenerationSettingsRequest is the wire form of scheduler.Settings (spec §6
// "Generation settings").
type GenerationSettingsRequest struct {
	SolverStrategy              string                   `json:"solverStrategy" validate:"omitempty,oneof=auto fast hybrid simulated_annealing genetic"`
	PopulationSize              int                      `json:"populationSize" validate:"omitempty,min=4,max=500"`
	Generations                 int                      `json:"generations" validate:"omitempty,min=1,max=2000"`
	EliteCount                  int                      `json:"eliteCount" validate:"omitempty,min=0,max=50"`
	TournamentSize              int                      `json:"tournamentSize" validate:"omitempty,min=2,max=20"`
	StagnationLimit             int                      `json:"stagnationLimit" validate:"omitempty,min=1"`
	MutationRate                float64                  `json:"mutationRate" validate:"omitempty,min=0,max=1"`
	CrossoverRate               float64                  `json:"crossoverRate" validate:"omitempty,min=0,max=1"`
	AnnealingIterations         int                      `json:"annealingIterations" validate:"omitempty,min=1"`
	AnnealingInitialTemperature float64                  `json:"annealingInitialTemperature" validate:"omitempty,min=0"`
	AnnealingCoolingRate        float64                  `json:"annealingCoolingRate" validate:"omitempty,gt=0,lt=1"`
	RandomSeed                  *int64                   `json:"randomSeed,omitempty"`
	ObjectiveWeights            *ObjectiveWeightsRequest `json:"objectiveWeights,omitempty"`
}

// GenerateTimetableRequest is the generate-request envelope (spec §6
// "Generate request").
type GenerateTimetableRequest struct {
	ProgramID        string                     `json:"programId" validate:"required"`
	TermNumber       int                        `json:"termNumber" validate:"required,min=1"`
	AlternativeCount int                        `json:"alternativeCount" validate:"required,min=1,max=20"`
	PersistOfficial  bool                       `json:"persistOfficial"`
	SettingsOverride *GenerationSettingsRequest `json:"settingsOverride,omitempty"`
	ReservedSlots    []ReservedSlotRequest      `json:"reservedSlots,omitempty"`
}

// CycleGenerateRequest chains per-term generations while keeping already-
// placed resources reserved across the chosen terms (supplemented feature,
// grounded in the original cycle generator).
type CycleGenerateRequest struct {
	ProgramID        string                     `json:"programId" validate:"required"`
	TermNumbers      []int                      `json:"termNumbers" validate:"required,min=1,dive,min=1"`
	AlternativeCount int                        `json:"alternativeCount" validate:"required,min=1,max=20"`
	PersistOfficial  bool                       `json:"persistOfficial"`
	SettingsOverride *GenerationSettingsRequest `json:"settingsOverride,omitempty"`
}

// PlacedSlotResponse is one decoded placed slot (spec §6 "payload").
type PlacedSlotResponse struct {
	ID           string `json:"id"`
	Day          string `json:"day"`
	StartTime    string `json:"startTime"`
	EndTime      string `json:"endTime"`
	CourseID     string `json:"courseId"`
	CourseCode   string `json:"courseCode"`
	RoomID       string `json:"roomId"`
	FacultyID    string `json:"facultyId"`
	Section      string `json:"section"`
	Batch        string `json:"batch,omitempty"`
	StudentCount int    `json:"studentCount"`
	SessionType  string `json:"sessionType"`
}

// AlternativeResponse is one ranked alternative in the generate response
// (spec §6 "alternatives: [{rank, fitness, hard_conflicts, soft_penalty,
// payload, …}]").
type AlternativeResponse struct {
	Rank          int                  `json:"rank"`
	Fitness       float64              `json:"fitness"`
	HardConflicts int                  `json:"hardConflicts"`
	SoftPenalty   float64              `json:"softPenalty"`
	Program       string               `json:"program"`
	TermNumber    int                  `json:"termNumber"`
	Slots         []PlacedSlotResponse `json:"slots"`
}

// GenerateTimetableResponse is the generate-response envelope (spec §6
// "Generate response").
type GenerateTimetableResponse struct {
	Alternatives   []AlternativeResponse     `json:"alternatives"`
	SettingsUsed   GenerationSettingsRequest `json:"settingsUsed"`
	RuntimeMS      int64                     `json:"runtimeMs"`
	PublishWarning string                    `json:"publishWarning,omitempty"`
}

// CycleGenerateResponse returns one alternative set per requested term plus
// the combined cross-term Pareto front ranking.
type CycleGenerateResponse struct {
	Terms     []GenerateTimetableResponse `json:"terms"`
	Front     []CycleFrontEntry           `json:"front,omitempty"`
	RuntimeMS int64                       `json:"runtimeMs"`
}

// CycleFrontEntry is one non-dominated combination across terms, pairing
// each term's alternative at the same rank index into an aggregated
// hard/soft score (spec §6 "combined cross-term Pareto front").
type CycleFrontEntry struct {
	Rank             int     `json:"rank"`
	HardConflicts    int     `json:"hardConflicts"`
	SoftPenalty      float64 `json:"softPenalty"`
	AlternativeIndex int     `json:"alternativeIndex"`
}

// VerifyTimetableRequest asks the publish gate to re-validate the decoded
// payload of the persisted run named by RunID.
type VerifyTimetableRequest struct {
	RunID string `json:"runId" validate:"required"`
	Force bool   `json:"force"`
}

// VerifyTimetableResponse reports whether a run's decoded payload still
// passes the publish gate.
type VerifyTimetableResponse struct {
	Passed  bool   `json:"passed"`
	Message string `json:"message,omitempty"`
}

// ConflictDecisionRequest drives the auto-resolver against the currently
// published payload (spec §6 "Conflict decision").
type ConflictDecisionRequest struct {
	ConflictID string `json:"conflictId" validate:"required"`
	Decision   string `json:"decision" validate:"required,oneof=yes no"`
	Note       string `json:"note,omitempty"`
}

// ConflictDecisionResponse reports the resolver's outcome.
type ConflictDecisionResponse struct {
	Resolved   bool   `json:"resolved"`
	Message    string `json:"message"`
	NewVersion string `json:"newVersion,omitempty"`
}

// ConflictListItem is one open conflict returned by the supplemented
// conflict-listing endpoint (grounded in the original's route; spec's
// distillation dropped the listing shape but kept the decision endpoint).
type ConflictListItem struct {
	ConflictID string `json:"conflictId"`
	Kind       string `json:"kind"`
	SlotID     string `json:"slotId"`
	OtherID    string `json:"otherId,omitempty"`
	Message    string `json:"message"`
}
