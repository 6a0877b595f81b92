package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden             ErrCode = "FORBIDDEN"
	ErrParticipantAccessOnly ErrCode = "PARTICIPANT_ACCESS_ONLY"
	ErrOperatorAccessOnly    ErrCode = "OPERATOR_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound     ErrCode = "NOT_FOUND"
	ErrInvalidState ErrCode = "INVALID_STATE"

	// ─── Exam-specific ─────────────────────────────────────────────────
	ErrNotParticipated   ErrCode = "NOT_PARTICIPATED"
	ErrAlreadyFinished   ErrCode = "ALREADY_FINISHED"
	ErrExamNotAvailable  ErrCode = "EXAM_NOT_AVAILABLE"
	ErrExamCompleted     ErrCode = "EXAM_COMPLETED"
	ErrSessionCompleted  ErrCode = "SESSION_COMPLETED"
	ErrNotSessionOwner   ErrCode = "NOT_SESSION_OWNER"
	ErrExternalService   ErrCode = "EXTERNAL_SERVICE_ERROR"
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "Anda tidak memiliki izin untuk mengakses sumber daya ini."
	case ErrParticipantAccessOnly:
		return "Sumber daya ini terbatas untuk peserta."
	case ErrOperatorAccessOnly:
		return "Sumber daya ini terbatas untuk operator."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidID:
		return "Format ID tidak valid."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Sumber daya tidak ditemukan."
	case ErrInvalidState:
		return "Status data tidak mengizinkan tindakan ini."

	// ─── Exam-specific ─────────────────────────────────────────────────
	case ErrNotParticipated:
		return "Anda belum terdaftar sebagai peserta ujian ini."
	case ErrAlreadyFinished:
		return "Anda sudah menyelesaikan ujian ini."
	case ErrExamNotAvailable:
		return "Ujian ini saat ini tidak tersedia."
	case ErrExamCompleted:
		return "Ujian ini sudah selesai."
	case ErrSessionCompleted:
		return "Sesi ujian ini sudah berakhir."
	case ErrNotSessionOwner:
		return "Sesi ujian ini bukan milik Anda."
	case ErrExternalService:
		return "Layanan eksternal sedang bermasalah. Silakan coba lagi nanti."
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}
