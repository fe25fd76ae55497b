package spec

import (
	"errors"
	"fmt"
	"slices"
)

var (
	ErrInvalidTypeCode = errors.New("invalid partition type code")
	ErrInvalidTypeName = errors.New("invalid partition type name")
)

// PartitionType identifies what a BPDT descriptor points at. Codes are sparse: 27-30 are unassigned and must stay
// that way.
//
// Names follow MEAnalyzer (platomav/MEAnalyzer, MEA.py).
type PartitionType uint32

const (
	PartitionTypeSMIP      PartitionType = 0  // OEM-SMIP Partition
	PartitionTypeRBEP      PartitionType = 1  // ROM Boot Extensions Partition (CSE-RBE)
	PartitionTypeFTPR      PartitionType = 2  // Fault Tolerant Partition (CSE-BUP/FTPR)
	PartitionTypeUCOD      PartitionType = 3  // Microcode Partition
	PartitionTypeIBBP      PartitionType = 4  // IBB Partition
	PartitionTypeSBPDT     PartitionType = 5  // Secondary BPDT
	PartitionTypeOBBP      PartitionType = 6  // OBB Partition
	PartitionTypeNFTP      PartitionType = 7  // Non-Fault Tolerant Partition (CSE-MAIN)
	PartitionTypeISHC      PartitionType = 8  // ISH Partition
	PartitionTypeDLMP      PartitionType = 9  // Debug Launch Module Partition
	PartitionTypeUEPB      PartitionType = 10 // IFP Override/Bypass Partition
	PartitionTypeUTOK      PartitionType = 11 // Debug Tokens Partition
	PartitionTypeUFSPHY    PartitionType = 12 // UFS PHY Partition
	PartitionTypeUFSGPPLUN PartitionType = 13 // UFS GPP LUN Partition
	PartitionTypePMCP      PartitionType = 14 // PMC Partition (a.k.a. PCOD)
	PartitionTypeIUNP      PartitionType = 15 // IUnit Partition
	PartitionTypeNVMC      PartitionType = 16 // NVM Configuration
	PartitionTypeUEP       PartitionType = 17 // Unified Emulation Partition
	PartitionTypeWCOD      PartitionType = 18 // CSE-WCOD Partition
	PartitionTypeLOCL      PartitionType = 19 // CSE-LOCL Partition
	PartitionTypeOEMP      PartitionType = 20 // OEM KM Partition
	PartitionTypeFITC      PartitionType = 21 // OEM Configuration (fitc.cfg)
	PartitionTypePAVP      PartitionType = 22 // Protected Audio Video Path
	PartitionTypeIOMP      PartitionType = 23 // USB Type C IO Manageability Partition (UIOM)
	PartitionTypeXPHY      PartitionType = 24 // USB Type C MG Partition (a.k.a. MGPP)
	PartitionTypeTBTP      PartitionType = 25 // USB Type C Thunderbolt Partition (TBT)
	PartitionTypePLTS      PartitionType = 26 // Platform Settings
	PartitionTypeDPHY      PartitionType = 31 // USB Type C Dekel PHY
	PartitionTypePCHC      PartitionType = 32 // PCH Configuration
	PartitionTypeISIF      PartitionType = 33 // Intel Safety Island Firmware
	PartitionTypeISIC      PartitionType = 34 // Intel Safety Island Configuration (N/A)
	PartitionTypeHBMI      PartitionType = 35 // HBM IO Partition
	PartitionTypeOMSM      PartitionType = 36 // OOB MSM Partition
	PartitionTypeGTGP      PartitionType = 37 // GT-GPU Partition
	PartitionTypeMDFI      PartitionType = 38 // MDF IO Partition
	PartitionTypePUNP      PartitionType = 39 // PUnit Partition
	PartitionTypePHYP      PartitionType = 40 // GSC PHY Partition
	PartitionTypeSAMF      PartitionType = 41 // SAM Firmware
	PartitionTypePPHY      PartitionType = 42 // PPHY Partition
	PartitionTypeGBST      PartitionType = 43 // GBST Partition
	PartitionTypeTCCP      PartitionType = 44 // USB Type C Controller Partition (a.k.a. TPCC)
	PartitionTypePSEP      PartitionType = 45 // Programmable Services Engine Partition
)

var partitionTypeNames = map[PartitionType]string{
	PartitionTypeSMIP:      "SMIP",
	PartitionTypeRBEP:      "RBEP",
	PartitionTypeFTPR:      "FTPR",
	PartitionTypeUCOD:      "UCOD",
	PartitionTypeIBBP:      "IBBP",
	PartitionTypeSBPDT:     "S_BPDT",
	PartitionTypeOBBP:      "OBBP",
	PartitionTypeNFTP:      "NFTP",
	PartitionTypeISHC:      "ISHC",
	PartitionTypeDLMP:      "DLMP",
	PartitionTypeUEPB:      "UEPB",
	PartitionTypeUTOK:      "UTOK",
	PartitionTypeUFSPHY:    "UFS_PHY",
	PartitionTypeUFSGPPLUN: "UFS_GPP_LUN",
	PartitionTypePMCP:      "PMCP",
	PartitionTypeIUNP:      "IUNP",
	PartitionTypeNVMC:      "NVMC",
	PartitionTypeUEP:       "UEP",
	PartitionTypeWCOD:      "WCOD",
	PartitionTypeLOCL:      "LOCL",
	PartitionTypeOEMP:      "OEMP",
	PartitionTypeFITC:      "FITC",
	PartitionTypePAVP:      "PAVP",
	PartitionTypeIOMP:      "IOMP",
	PartitionTypeXPHY:      "xPHY",
	PartitionTypeTBTP:      "TBTP",
	PartitionTypePLTS:      "PLTS",
	PartitionTypeDPHY:      "DPHY",
	PartitionTypePCHC:      "PCHC",
	PartitionTypeISIF:      "ISIF",
	PartitionTypeISIC:      "ISIC",
	PartitionTypeHBMI:      "HBMI",
	PartitionTypeOMSM:      "OMSM",
	PartitionTypeGTGP:      "GTGP",
	PartitionTypeMDFI:      "MDFI",
	PartitionTypePUNP:      "PUNP",
	PartitionTypePHYP:      "PHYP",
	PartitionTypeSAMF:      "SAMF",
	PartitionTypePPHY:      "PPHY",
	PartitionTypeGBST:      "GBST",
	PartitionTypeTCCP:      "TCCP",
	PartitionTypePSEP:      "PSEP",
}

var partitionTypesByName = func() map[string]PartitionType {
	byName := make(map[string]PartitionType, len(partitionTypeNames))
	for t, name := range partitionTypeNames {
		byName[name] = t
	}

	return byName
}()

// ParsePartitionTypeCode maps an on-disk type code to a [PartitionType]. Codes outside the known set are rejected
// rather than passed through.
func ParsePartitionTypeCode(code uint32) (PartitionType, error) {
	t := PartitionType(code)
	if _, ok := partitionTypeNames[t]; !ok {
		return 0, fmt.Errorf("%w: %d", ErrInvalidTypeCode, code)
	}

	return t, nil
}

// ParsePartitionTypeName maps a symbolic name (as printed by [PartitionType.String]) to a [PartitionType]. Matching
// is case-sensitive, since 'xPHY' is not upper case.
func ParsePartitionTypeName(name string) (PartitionType, error) {
	t, ok := partitionTypesByName[name]
	if !ok {
		return 0, fmt.Errorf("%w: '%s'", ErrInvalidTypeName, name)
	}

	return t, nil
}

// PartitionTypes returns every known partition type in ascending code order
func PartitionTypes() []PartitionType {
	types := make([]PartitionType, 0, len(partitionTypeNames))
	for t := range partitionTypeNames {
		types = append(types, t)
	}

	slices.Sort(types)
	return types
}

func (t PartitionType) String() string {
	if name, ok := partitionTypeNames[t]; ok {
		return name
	}

	return fmt.Sprintf("PartitionType(%d)", uint32(t))
}
