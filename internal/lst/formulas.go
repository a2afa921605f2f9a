package lst

import "math"

const kelvinOffset = 273.15

// TOAValue converts a thermal digital number to top of atmosphere radiance.
func TOAValue(dn, mult, add float64) float64 {
	return mult*dn + add
}

// SolarCorrectedTOAValue divides the radiance by the cosine of the solar
// zenith angle.
//
// Deprecated: kept for reproducing older runs. Thermal radiance is not scaled
// by the sun angle.
func SolarCorrectedTOAValue(dn, mult, add, sunElevation float64) float64 {
	zenith := (90 - sunElevation) * math.Pi / 180
	return TOAValue(dn, mult, add) / math.Cos(zenith)
}

// BrightnessTemperatureValue inverts Planck's law with the band constants and
// returns degrees Celsius.
func BrightnessTemperatureValue(toa, k1, k2 float64) float64 {
	return k2/(math.Log(k1/toa)+1) - kelvinOffset
}

func NDVIValue(nir, red float64) float64 {
	return (nir - red) / (nir + red)
}

func ProportionOfVegetationValue(ndvi, min, max float64) float64 {
	r := (ndvi - min) / (max - min)
	return r * r
}

func EmissivityValue(pv, coefficient, constant float64) float64 {
	return coefficient*pv + constant
}

// LSTValue corrects the brightness temperature with the surface emissivity.
func LSTValue(bt, emissivity, wavelength, rho float64) float64 {
	return bt / (1 + (wavelength*bt/rho)*math.Log(emissivity))
}
