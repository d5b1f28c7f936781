package authz

// Action is a protected operation. The set is closed: every action has a
// Protection, and adding one without a case in Protection fails the
// exhaustiveness test.
type Action string

const (
	ActionViewOwnRole        Action = "view_own_role"
	ActionManageOwnProfile   Action = "manage_own_profile"
	ActionSubmitKyc          Action = "submit_kyc"
	ActionViewKycStatus      Action = "view_kyc_status"
	ActionViewDoctorApproval Action = "view_doctor_approval"

	ActionBookAppointment Action = "book_appointment"

	ActionDoctorWorkspace   Action = "doctor_workspace"
	ActionViewPatientRecord Action = "view_patient_record"

	ActionApproveDoctor      Action = "approve_doctor"
	ActionListPendingDoctors Action = "list_pending_doctors"
	ActionReviewKyc          Action = "review_kyc"
	ActionListPendingKyc     Action = "list_pending_kyc"
	ActionViewKycAudit       Action = "view_kyc_audit"
	ActionViewAnyKyc         Action = "view_any_kyc"
	ActionManageAnyProfile   Action = "manage_any_profile"
)

// AllActions lists every action. Tests walk it to prove Protection is total.
var AllActions = []Action{
	ActionViewOwnRole,
	ActionManageOwnProfile,
	ActionSubmitKyc,
	ActionViewKycStatus,
	ActionViewDoctorApproval,
	ActionBookAppointment,
	ActionDoctorWorkspace,
	ActionViewPatientRecord,
	ActionApproveDoctor,
	ActionListPendingDoctors,
	ActionReviewKyc,
	ActionListPendingKyc,
	ActionViewKycAudit,
	ActionViewAnyKyc,
	ActionManageAnyProfile,
}

// Protection is the requirement an action places on the caller.
type Protection int

const (
	protectionUnknown Protection = iota
	// ProtectionAuthenticated admits any principal holding a role.
	ProtectionAuthenticated
	// ProtectionPatient requires role patient.
	ProtectionPatient
	// ProtectionDoctor requires role doctor and an approved profile.
	ProtectionDoctor
	// ProtectionAdmin requires role admin.
	ProtectionAdmin
)

func (p Protection) String() string {
	switch p {
	case ProtectionAuthenticated:
		return "authenticated"
	case ProtectionPatient:
		return "patient"
	case ProtectionDoctor:
		return "doctor"
	case ProtectionAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// Protection returns the requirement for a. Unknown actions report false.
func (a Action) Protection() (Protection, bool) {
	switch a {
	case ActionViewOwnRole, ActionManageOwnProfile, ActionSubmitKyc, ActionViewKycStatus, ActionViewDoctorApproval:
		return ProtectionAuthenticated, true
	case ActionBookAppointment:
		return ProtectionPatient, true
	case ActionDoctorWorkspace, ActionViewPatientRecord:
		return ProtectionDoctor, true
	case ActionApproveDoctor, ActionListPendingDoctors, ActionReviewKyc, ActionListPendingKyc, ActionViewKycAudit, ActionViewAnyKyc, ActionManageAnyProfile:
		return ProtectionAdmin, true
	default:
		return protectionUnknown, false
	}
}
