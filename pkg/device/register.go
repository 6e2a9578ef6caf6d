package device

// RegisterDefaults wires every built-in vendor driver and its capability
// set into f. Called once against DefaultFactory via init(), and available
// for tests that want an isolated factory.
func RegisterDefaults(f *Factory) {
	f.RegisterDriver(TypeBrocade, newBrocadeDevice, brocadeCapabilities)
	f.RegisterDriver(TypeZyxelCLI, newZyxelCLIDevice, zyxelCLICapabilities)
	f.RegisterDriver(TypeZyxel, newZyxelWebDevice, zyxelWebCapabilities)
	f.RegisterDriver(TypeOpenWrt, newOpenWrtDevice, openWrtCapabilities)
	f.RegisterDriver(TypeONTI, newONTIDevice, ontiCapabilities)
}
