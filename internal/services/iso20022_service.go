package services

import (
	"encoding/xml"
	"fmt"
	"log"
	"time"

	"github.com/eventure/backend/internal/models"
	"github.com/google/uuid"
	"github.com/moov-io/iso20022/pkg/common"
	"github.com/moov-io/iso20022/pkg/pacs_v08"
)

// ISO20022Service builds the payout-rail messages for approved withdrawals.
// The rail itself is outside this core; messages are handed over and the rail
// owns retries and settlement confirmation.
type ISO20022Service struct {
	debtorName string
	currency   string
}

func NewISO20022Service() *ISO20022Service {
	return &ISO20022Service{
		debtorName: "EVENTURE",
		currency:   "VND",
	}
}

// CreatePayoutInstruction builds a pacs.008 credit transfer paying the
// post-commission amount to the organizer's payout account.
func (iso *ISO20022Service) CreatePayoutInstruction(request *models.WithdrawalRequest, account *models.PayoutAccount) (*pacs_v08.FIToFICustomerCreditTransferV08, error) {
	if request == nil || account == nil {
		return nil, fmt.Errorf("withdrawal request and payout account are required")
	}

	msgID := uuid.New().String()
	now := time.Now()

	doc := &pacs_v08.FIToFICustomerCreditTransferV08{
		GrpHdr: pacs_v08.GroupHeader93{
			MsgId:   common.Max35Text(msgID),
			CreDtTm: common.ISODateTime(now),
			NbOfTxs: "1",
			TtlIntrBkSttlmAmt: &pacs_v08.ActiveCurrencyAndAmount{
				Ccy:   common.ActiveCurrencyCode(iso.currency),
				Value: request.Amount,
			},
			IntrBkSttlmDt: (*common.ISODate)(&now),
			SttlmInf: pacs_v08.SettlementInstruction7{
				SttlmMtd: "CLRG",
			},
		},
		CdtTrfTxInf: []pacs_v08.CreditTransferTransaction39{
			{
				PmtId: pacs_v08.PaymentIdentification7{
					InstrId:    &[]common.Max35Text{common.Max35Text(request.ID)}[0],
					EndToEndId: common.Max35Text(request.ID),
					TxId:       &[]common.Max35Text{common.Max35Text(request.ID)}[0],
				},
				IntrBkSttlmAmt: pacs_v08.ActiveCurrencyAndAmount{
					Ccy:   common.ActiveCurrencyCode(iso.currency),
					Value: request.Amount,
				},
				IntrBkSttlmDt: (*common.ISODate)(&now),
				ChrgBr:        "SLEV",
				DbtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						BICFI: &[]common.BICFIDec2014Identifier{common.BICFIDec2014Identifier(iso.debtorName)}[0],
					},
				},
				Dbtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(iso.debtorName)}[0],
				},
				CdtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						ClrSysMmbId: &pacs_v08.ClearingSystemMemberIdentification2{
							MmbId: common.Max35Text(account.BankName),
						},
					},
				},
				Cdtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(fmt.Sprintf("%s %s", account.AccountName, account.AccountNumber))}[0],
				},
			},
		},
	}

	return doc, nil
}

// CreateStatusReport builds a pacs.002 acknowledging a payout instruction.
func (iso *ISO20022Service) CreateStatusReport(requestID, status string) (*pacs_v08.FIToFIPaymentStatusReportV08, error) {
	doc := &pacs_v08.FIToFIPaymentStatusReportV08{
		GrpHdr: pacs_v08.GroupHeader53{
			MsgId:   common.Max35Text(uuid.New().String()),
			CreDtTm: common.ISODateTime(time.Now()),
		},
		TxInfAndSts: []pacs_v08.PaymentTransaction80{
			{
				OrgnlInstrId:    &[]common.Max35Text{common.Max35Text(requestID)}[0],
				OrgnlEndToEndId: &[]common.Max35Text{common.Max35Text(requestID)}[0],
				OrgnlTxId:       &[]common.Max35Text{common.Max35Text(requestID)}[0],
				TxSts:           &[]pacs_v08.ExternalPaymentTransactionStatus1Code{pacs_v08.ExternalPaymentTransactionStatus1Code(status)}[0],
			},
		},
	}
	return doc, nil
}

// SendToPayoutRail hands the message to the payout rail.
// TODO: replace the log sink with the rail's submission endpoint once the
// operations team provisions credentials.
func (iso *ISO20022Service) SendToPayoutRail(doc any) error {
	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal XML: %w", err)
	}

	log.Printf("[PAYOUT] Sending instruction to payout rail:\n%s", string(xmlData))
	return nil
}

// ToXML serializes a message for audit storage.
func (iso *ISO20022Service) ToXML(doc any) (string, error) {
	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal XML: %w", err)
	}
	return xml.Header + string(xmlData), nil
}
