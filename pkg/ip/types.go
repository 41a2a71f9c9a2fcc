package ip

// MaxDepth bounds both recursive dependency resolution and the number of
// remote install rounds.
const MaxDepth = 50

// DescriptorFileName is the name of the file declaring one IP.
const DescriptorFileName = "ip.yml"

// PkgType is the kind of package an IP is.
type PkgType string

const (
	PkgTypeDVLibrary PkgType = "dv_lib"
	PkgTypeDVAgent   PkgType = "dv_agent"
	PkgTypeDVEnv     PkgType = "dv_env"
	PkgTypeDVTB      PkgType = "dv_tb"
	PkgTypeLibrary   PkgType = "lib"
	PkgTypeBlock     PkgType = "block"
	PkgTypeSS        PkgType = "ss"
	PkgTypeFPGA      PkgType = "fpga"
	PkgTypeChip      PkgType = "chip"
	PkgTypeSystem    PkgType = "system"
	PkgTypeCustom    PkgType = "custom"
)

// LocationType tells where an IP was discovered. It decides which operations
// are allowed on the IP: only local IPs are packaged or published, only
// installed IPs are removed from disk.
type LocationType string

const (
	LocationLocal     LocationType = "local"
	LocationInstalled LocationType = "installed"
	LocationGlobal    LocationType = "global"
)

// LicenseType is the license an IP is published under.
type LicenseType string

const (
	LicensePublicOpenSource LicenseType = "public_open_source"
	LicenseCommercial       LicenseType = "commercial"
	LicensePrivate          LicenseType = "private"
)

// DutType is the kind of design under test a testbench binds to.
type DutType string

const (
	DutTypeIP      DutType = "ip"
	DutTypeFuseSoC DutType = "fsoc"
	DutTypeVivado  DutType = "vivado"
)

// ParameterType is the type of a target parameter.
type ParameterType string

const (
	ParameterTypeInt  ParameterType = "int"
	ParameterTypeBool ParameterType = "bool"
)
