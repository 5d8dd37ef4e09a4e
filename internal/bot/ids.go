package bot

// Component and modal custom ids. Ids that carry an argument are written
// "prefix:arg".
const (
	idVerifyMember     = "verify_member_button"
	idToggleMissionDMs = "toggle_mission_dms"
	idApproveCashout   = "approve_cashout"
	idDenyCashout      = "deny_cashout"
	idCreateTicket     = "create_ticket_button"
	idTicketType       = "ticket_type_select"
	idCloseTicket      = "close_ticket_button"
	idCategorySelect   = "category_select_menu"
	idProductSelect    = "product_select_menu"
	idOptionSelect     = "option_select"
	idBuyProduct       = "buy_product"
	idConfirmPayment   = "confirm_payment_ticket"
	idDenyPayment      = "deny_payment_ticket"

	modalCashout         = "cashout_modal"
	modalSubmitChallenge = "submit_challenge_modal"

	profileCardFile = "profil.png"
)
