package services

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/deluge-fund/backend/internal/models"
	"github.com/google/uuid"
	"github.com/moov-io/iso20022/pkg/common"
	"github.com/moov-io/iso20022/pkg/pacs_v08"
)

const platformBIC = "DELUGEFD"

// SettlementReportService renders cleared settlements as ISO 20022 messages
// for the external settlement system.
type SettlementReportService struct{}

func NewSettlementReportService() *SettlementReportService {
	return &SettlementReportService{}
}

// CreatePacs008 builds a pacs.008 FIToFICustomerCreditTransfer describing the
// movement a cleared settlement applied to the reserve. Positive settlement
// amounts flow from the provider to the platform, negative amounts the other
// way around.
func (iso *SettlementReportService) CreatePacs008(settlement *models.Settlement, currency string) (*pacs_v08.FIToFICustomerCreditTransferV08, error) {
	if settlement.Status != models.SettlementCleared {
		return nil, ErrSettlementNotPending
	}

	msgId := uuid.New().String()
	creDtTm := time.Now()
	settlementDate := settlement.CreatedAt
	if settlement.ClearedAt != nil {
		settlementDate = *settlement.ClearedAt
	}

	amount := settlement.Amount
	debtor, creditor := settlement.ProviderRef, platformBIC
	if amount < 0 {
		amount = -amount
		debtor, creditor = platformBIC, settlement.ProviderRef
	}
	value := float64(amount) / 100

	doc := &pacs_v08.FIToFICustomerCreditTransferV08{
		GrpHdr: pacs_v08.GroupHeader93{
			MsgId:   common.Max35Text(msgId),
			CreDtTm: common.ISODateTime(creDtTm),
			NbOfTxs: "1",
			TtlIntrBkSttlmAmt: &pacs_v08.ActiveCurrencyAndAmount{
				Ccy:   common.ActiveCurrencyCode(currency),
				Value: value,
			},
			IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
			SttlmInf: pacs_v08.SettlementInstruction7{
				SttlmMtd: "CLRG", // Clearing
			},
		},
		CdtTrfTxInf: []pacs_v08.CreditTransferTransaction39{
			{
				PmtId: pacs_v08.PaymentIdentification7{
					InstrId:    &[]common.Max35Text{common.Max35Text(settlement.ID)}[0],
					EndToEndId: common.Max35Text(settlement.ProviderRef),
					TxId:       &[]common.Max35Text{common.Max35Text(settlement.ID)}[0],
				},
				IntrBkSttlmAmt: pacs_v08.ActiveCurrencyAndAmount{
					Ccy:   common.ActiveCurrencyCode(currency),
					Value: value,
				},
				IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
				ChrgBr:        "SLEV",
				DbtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						BICFI: &[]common.BICFIDec2014Identifier{common.BICFIDec2014Identifier(platformBIC)}[0],
					},
				},
				Dbtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(debtor)}[0],
				},
				CdtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						BICFI: &[]common.BICFIDec2014Identifier{common.BICFIDec2014Identifier(platformBIC)}[0],
					},
				},
				Cdtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(creditor)}[0],
				},
			},
		},
	}

	return doc, nil
}

// CreatePacs002 builds a pacs.002 payment status report for a settlement.
func (iso *SettlementReportService) CreatePacs002(settlement *models.Settlement, status string) (*pacs_v08.FIToFIPaymentStatusReportV08, error) {
	msgId := uuid.New().String()
	creDtTm := time.Now()

	doc := &pacs_v08.FIToFIPaymentStatusReportV08{
		GrpHdr: pacs_v08.GroupHeader53{
			MsgId:   common.Max35Text(msgId),
			CreDtTm: common.ISODateTime(creDtTm),
		},
		TxInfAndSts: []pacs_v08.PaymentTransaction80{
			{
				OrgnlInstrId:    &[]common.Max35Text{common.Max35Text(settlement.ID)}[0],
				OrgnlEndToEndId: &[]common.Max35Text{common.Max35Text(settlement.ProviderRef)}[0],
				OrgnlTxId:       &[]common.Max35Text{common.Max35Text(settlement.ID)}[0],
				TxSts:           &[]pacs_v08.ExternalPaymentTransactionStatus1Code{pacs_v08.ExternalPaymentTransactionStatus1Code(status)}[0], // ACCP, RJCT, ACSC, etc.
			},
		},
	}

	return doc, nil
}

// ConvertToXML converts an ISO 20022 document to an XML string.
func (iso *SettlementReportService) ConvertToXML(doc interface{}) (string, error) {
	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal XML: %w", err)
	}
	return xml.Header + string(xmlData), nil
}
